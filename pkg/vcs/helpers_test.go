package vcs

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/internal/metrics"
	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
	"github.com/nainya/contentvc/pkg/store/memory"
)

type fixture struct {
	eng     *Engine
	repo    *Repo
	sink    *audit.Recorder
	metrics *metrics.Metrics
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%04d", n.Add(1)) }
}

func tickingClock() func() time.Time {
	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Millisecond) }
}

func newFixtureOn(t *testing.T, s store.Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		sink:    &audit.Recorder{},
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
	base := []Option{
		WithAuditSink(f.sink),
		WithMetrics(f.metrics),
		WithClock(tickingClock()),
		WithIDGenerator(sequentialIDs()),
	}
	f.eng = New(s, append(base, opts...)...)
	repo, err := f.eng.Open(context.Background(), "item-1")
	require.NoError(t, err)
	f.repo = repo
	return f
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	return newFixtureOn(t, memory.New(), opts...)
}

// doc builds a payload from JSON-like values
func doc(t *testing.T, m map[string]any) payload.Payload {
	t.Helper()
	p, err := payload.FromMap(m)
	require.NoError(t, err)
	return p
}

func (f *fixture) root(t *testing.T, m map[string]any) *store.Version {
	t.Helper()
	v, err := f.repo.CreateRootVersion(context.Background(), doc(t, m), "initial", "author-1")
	require.NoError(t, err)
	return v
}

func (f *fixture) commit(t *testing.T, branch string, m map[string]any) *store.Version {
	t.Helper()
	v, err := f.repo.Commit(context.Background(), branch, doc(t, m), "edit on "+branch, "author-1")
	require.NoError(t, err)
	return v
}

func (f *fixture) branch(t *testing.T, name, base string) *store.Branch {
	t.Helper()
	br, err := f.repo.CreateBranch(context.Background(), name, base)
	require.NoError(t, err)
	return br
}

func (f *fixture) head(t *testing.T, branch string) string {
	t.Helper()
	br, err := f.repo.GetBranch(context.Background(), branch)
	require.NoError(t, err)
	return br.Head
}

func (f *fixture) versionCount(t *testing.T) int {
	t.Helper()
	list, err := f.eng.Store().ListVersions(context.Background(), f.repo.ID())
	require.NoError(t, err)
	return len(list)
}

func ids(vs []*store.Version) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out
}
