package bootstrap

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/internal/config"
	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store/cached"
	"github.com/nainya/contentvc/pkg/store/memory"
)

func commitTwice(t *testing.T, app *App) {
	t.Helper()
	ctx := context.Background()
	repo, err := app.Engine.Open(ctx, "article-7")
	require.NoError(t, err)
	p, err := payload.FromMap(map[string]any{"title": "one"})
	require.NoError(t, err)
	_, err = repo.CreateRootVersion(ctx, p, "initial", "author-1")
	require.NoError(t, err)
	p, err = payload.FromMap(map[string]any{"title": "two"})
	require.NoError(t, err)
	_, err = repo.CommitCurrent(ctx, p, "second", "author-1")
	require.NoError(t, err)
}

func TestDefaultsAssembleMemoryEngine(t *testing.T) {
	var logs bytes.Buffer
	app, err := New(config.Default(), WithLogOutput(&logs))
	require.NoError(t, err)

	c, ok := app.Store.(*cached.Store)
	require.True(t, ok, "expected a cached store, got %T", app.Store)
	_, ok = c.Store.(*memory.Store)
	assert.True(t, ok)
	assert.Nil(t, app.Journal)
	assert.Nil(t, app.Ops)
	require.NotNil(t, app.Metrics)

	commitTwice(t, app)
	assert.Equal(t, 2.0, testutil.ToFloat64(app.Metrics.VersionsCreatedTotal))

	require.NoError(t, app.Close())
	assert.Contains(t, logs.String(), "contentvc engine starting")
	assert.Contains(t, logs.String(), "contentvc engine shutting down")
}

func TestSQLiteWithJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoreDriver = config.DriverSQLite
	cfg.StorePath = filepath.Join(dir, "vcs.db")
	cfg.AuditJournalPath = filepath.Join(dir, "audit", "events")
	cfg.CacheSize = 0
	cfg.MetricsEnabled = false
	cfg.MetricsAddr = "127.0.0.1:0"

	app, err := New(cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Nil(t, app.Metrics)
	require.NotNil(t, app.Ops)

	commitTwice(t, app)
	require.NoError(t, app.Close())

	events, err := audit.ReadAll(cfg.AuditJournalPath)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.OpRootCreate, events[0].Operation)
	assert.Equal(t, audit.OpCommit, events[1].Operation)

	// reopening finds the same repository on disk
	app, err = New(cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	defer app.Close()
	repo, err := app.Engine.Open(context.Background(), "article-7")
	require.NoError(t, err)
	hist, err := repo.History(context.Background(), "main", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = config.DriverSQLite
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestFailedAssemblyClosesWhatWasOpened(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoreDriver = config.DriverSQLite
	cfg.StorePath = filepath.Join(dir, "vcs.db")
	// a journal path whose parent is a regular file cannot be opened
	cfg.AuditJournalPath = filepath.Join(cfg.StorePath, "events")

	failed, err := New(cfg, WithLogOutput(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open audit journal")
	assert.Nil(t, failed)

	// the store was released, so it opens again
	cfg.AuditJournalPath = ""
	app, err := New(cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	require.NoError(t, app.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	app, err := New(config.Default(), WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
}
