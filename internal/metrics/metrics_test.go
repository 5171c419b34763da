package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordOperation("commit", nil, time.Millisecond)
	m.RecordOperation("commit", nil, time.Millisecond)
	m.RecordOperation("commit", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("commit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("commit", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordVersion()
	m.RecordMerge("three-way", "conflicted")
	m.RecordConflicts(3)
	m.RecordResolution()
	m.RecordAuditFailure()
	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VersionsCreatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("three-way", "conflicted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConflictsOpenedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsResolvedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailuresTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordOperation("commit", nil, time.Second)
	m.RecordVersion()
	m.RecordMerge("squash", "clean")
	m.RecordConflicts(1)
	m.RecordResolution()
	m.RecordAuditFailure()
	m.CacheHit()
	m.CacheMiss()
}

func TestSeparateRegistries(t *testing.T) {
	// Two engines in one process must not collide on registration.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordVersion()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "contentvc_versions_created_total 1"), string(body))
}
