// Package bootstrap assembles an engine and its supporting resources from Config
package bootstrap

import (
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nainya/contentvc/internal/config"
	"github.com/nainya/contentvc/internal/logger"
	"github.com/nainya/contentvc/internal/metrics"
	"github.com/nainya/contentvc/internal/server"
	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/store"
	"github.com/nainya/contentvc/pkg/store/cached"
	"github.com/nainya/contentvc/pkg/store/memory"
	"github.com/nainya/contentvc/pkg/store/sqlite"
	"github.com/nainya/contentvc/pkg/vcs"
)

// App holds everything an engine needs at runtime
type App struct {
	Config   config.Config
	Log      *logger.Logger
	Registry *prometheus.Registry // nil when metrics are disabled
	Metrics  *metrics.Metrics
	Store    store.Store
	Journal  *audit.Journal // nil without a journal path
	Engine   *vcs.Engine

	// Ops serves /metrics, /health and /ready; nil when no address is configured.
	// Callers run Start themselves.
	Ops *server.ObservabilityServer

	syncer *audit.Syncer
}

// Option adjusts assembly
type Option func(*options)

type options struct {
	logOutput io.Writer
	engine    []vcs.Option
}

// WithLogOutput sends logs to w instead of stdout
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithEngineOptions passes extra options to the engine, such as a content resolver
func WithEngineOptions(opts ...vcs.Option) Option {
	return func(o *options) { o.engine = append(o.engine, opts...) }
}

// New opens the store, the audit journal and the engine described by cfg.
// On failure everything opened so far is closed again.
func New(cfg config.Config, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	app.Log = logger.NewLogger(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: o.logOutput})
	defer func() {
		if err != nil {
			err = errors.Join(err, app.Close())
		}
	}()

	if cfg.MetricsEnabled {
		app.Registry = prometheus.NewRegistry()
		app.Metrics = metrics.NewMetrics(app.Registry)
	}

	app.Log.LogStartup(cfg.StoreDriver, cfg.StorePath)
	if app.Store, err = openStore(cfg, app.Metrics, app.Log.StoreLogger(cfg.StoreDriver)); err != nil {
		return nil, err
	}

	sink := audit.Discard
	if cfg.AuditJournalPath != "" {
		if app.Journal, err = audit.OpenJournal(cfg.AuditJournalPath); err != nil {
			return nil, fmt.Errorf("open audit journal: %w", err)
		}
		journalLog := app.Log.WithFields(map[string]interface{}{"component": "audit"})
		app.syncer = audit.NewSyncer(app.Journal, cfg.AuditSyncInterval, func(err error) {
			journalLog.Warn("audit journal sync failed").Err(err).Send()
		})
		app.syncer.Start()
		sink = app.Journal
	}

	engineOpts := []vcs.Option{
		vcs.WithLogger(app.Log),
		vcs.WithMetrics(app.Metrics),
		vcs.WithAuditSink(sink),
		vcs.WithDefaultBranch(cfg.DefaultBranch),
	}
	app.Engine = vcs.New(app.Store, append(engineOpts, o.engine...)...)

	if cfg.MetricsAddr != "" {
		app.Ops = server.NewObservabilityServer(cfg.MetricsAddr, app.Metrics, app.Store, app.Log)
	}
	return app, nil
}

func openStore(cfg config.Config, m *metrics.Metrics, log *logger.Logger) (store.Store, error) {
	var backend store.Store
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		backend = s
	default:
		backend = memory.New()
	}
	if cfg.CacheSize == 0 {
		log.Debug("version cache disabled").Send()
		return backend, nil
	}

	var cacheOpts []cached.Option
	if m != nil {
		cacheOpts = append(cacheOpts, cached.WithObserver(m))
	}
	c, err := cached.New(backend, cfg.CacheSize, cacheOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("version cache: %w", err), backend.Close())
	}
	log.Debug("version cache enabled").Int("size", cfg.CacheSize).Send()
	return c, nil
}

// Close stops the journal syncer, then closes the journal and the store
func (a *App) Close() error {
	var errs []error
	if a.syncer != nil {
		a.syncer.Stop()
		a.syncer = nil
	}
	if a.Journal != nil {
		errs = append(errs, a.Journal.Close())
		a.Journal = nil
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
		a.Store = nil
	}
	if a.Log != nil {
		a.Log.LogShutdown()
	}
	return errors.Join(errs...)
}
