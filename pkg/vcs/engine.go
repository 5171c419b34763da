// ABOUTME: Engine owns the store and per-repository write locks
// ABOUTME: Repo handles carry the checked-out branch for one content item

// Package vcs tracks revisions of structured content items: versions in a DAG,
// named branches, merges with field-level conflicts, history and rollback.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/contentvc/internal/logger"
	"github.com/nainya/contentvc/internal/metrics"
	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/store"
)

// DefaultBranch is the branch every repository starts with unless configured otherwise
const DefaultBranch = "main"

// ContentResolver confirms that a content item exists before a repository is opened
type ContentResolver interface {
	ContentItemExists(ctx context.Context, contentItemID string) (bool, error)
}

// Engine serves repositories from one store
type Engine struct {
	store         store.Store
	resolver      ContentResolver
	sink          audit.Sink
	log           *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
	newID         func() string
	defaultBranch string

	mu    sync.Mutex
	locks map[string]*sync.Mutex // repository id -> write lock
}

// Option configures an Engine
type Option func(*Engine)

// WithContentResolver checks content items on Open
func WithContentResolver(r ContentResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithAuditSink sends an event for every completed mutation
func WithAuditSink(s audit.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides uuid generation
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithDefaultBranch sets the default branch name of new repositories
func WithDefaultBranch(name string) Option {
	return func(e *Engine) { e.defaultBranch = name }
}

// New creates an engine over s
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		sink:          audit.Discard,
		log:           logger.Nop(),
		now:           time.Now,
		newID:         uuid.NewString,
		defaultBranch: DefaultBranch,
		locks:         make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the backing store
func (e *Engine) Store() store.Store {
	return e.store
}

// lockFor returns the write lock of a repository
func (e *Engine) lockFor(repositoryID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[repositoryID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[repositoryID] = l
	}
	return l
}

// Open returns a handle on the repository of a content item, creating the
// repository on first use. The handle starts on the default branch.
func (e *Engine) Open(ctx context.Context, contentItemID string) (*Repo, error) {
	if strings.TrimSpace(contentItemID) == "" {
		return nil, validationf("content item id is required")
	}
	if e.resolver != nil {
		ok, err := e.resolver.ContentItemExists(ctx, contentItemID)
		if err != nil {
			return nil, fmt.Errorf("resolve content item %s: %w", contentItemID, err)
		}
		if !ok {
			return nil, fmt.Errorf("content item %s: %w", contentItemID, ErrNotFound)
		}
	}

	repo, err := e.store.GetRepositoryByContentItem(ctx, contentItemID)
	if errors.Is(err, store.ErrNotFound) {
		repo, err = e.createRepository(ctx, contentItemID)
	}
	if err != nil {
		return nil, translate(err)
	}
	return e.handle(repo), nil
}

func (e *Engine) createRepository(ctx context.Context, contentItemID string) (*store.Repository, error) {
	// Creation is serialised per content item so two Opens agree on one repository.
	l := e.lockFor(itemLockKey(contentItemID))
	l.Lock()
	defer l.Unlock()

	if repo, err := e.store.GetRepositoryByContentItem(ctx, contentItemID); err == nil {
		return repo, nil
	}
	repo := &store.Repository{
		ID:            e.newID(),
		ContentItemID: contentItemID,
		DefaultBranch: e.defaultBranch,
		CreatedAt:     e.now(),
	}
	err := e.store.Apply(ctx, store.NewBatch().CreateRepository(repo))
	if errors.Is(err, store.ErrAlreadyExists) {
		return e.store.GetRepositoryByContentItem(ctx, contentItemID)
	}
	if err != nil {
		return nil, err
	}
	e.log.RepoLogger(repo.ID).Info("repository created").Str("content_item_id", contentItemID).Send()
	return repo, nil
}

func (e *Engine) handle(repo *store.Repository) *Repo {
	return &Repo{
		e:       e,
		repo:    repo,
		log:     e.log.RepoLogger(repo.ID),
		current: repo.DefaultBranch,
	}
}

// DeleteRepository removes the repository of a content item with all its
// versions, branches, merge attempts and conflicts
func (e *Engine) DeleteRepository(ctx context.Context, contentItemID string) error {
	repo, err := e.store.GetRepositoryByContentItem(ctx, contentItemID)
	if err != nil {
		return translate(err)
	}
	l := e.lockFor(repo.ID)
	l.Lock()
	defer l.Unlock()
	if err := e.store.DeleteRepository(ctx, repo.ID); err != nil {
		return translate(err)
	}
	e.forgetLocks(repo.ID, itemLockKey(contentItemID))
	return nil
}

// forgetLocks drops lock entries of a deleted repository. Handles still
// holding the old lock only reach a store that reports the repository gone.
func (e *Engine) forgetLocks(keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range keys {
		delete(e.locks, k)
	}
}

func itemLockKey(contentItemID string) string { return "item:" + contentItemID }

// Repo is a handle on one repository. Handles are cheap; each keeps its own
// checked-out branch and all of them share the repository's write lock.
type Repo struct {
	e    *Engine
	repo *store.Repository
	log  *logger.Logger

	mu      sync.Mutex
	current string
}

// ID returns the repository id
func (r *Repo) ID() string { return r.repo.ID }

// ContentItemID returns the content item this repository versions
func (r *Repo) ContentItemID() string { return r.repo.ContentItemID }

// DefaultBranch returns the protected default branch name
func (r *Repo) DefaultBranch() string { return r.repo.DefaultBranch }

// lock takes the repository write lock and returns its release
func (r *Repo) lock() func() {
	l := r.e.lockFor(r.repo.ID)
	l.Lock()
	return l.Unlock
}

// observe logs and measures one operation
func (r *Repo) observe(operation string, start time.Time, err error) {
	d := time.Since(start)
	r.log.LogOperation(operation, d, err)
	r.e.metrics.RecordOperation(operation, err, d)
}

// emit delivers an audit event; failures are logged and counted only
func (r *Repo) emit(ctx context.Context, op audit.Operation, versionID, branch, actor string) {
	ev := audit.Event{
		RepositoryID: r.repo.ID,
		Operation:    op,
		VersionID:    versionID,
		Branch:       branch,
		Actor:        actor,
		Timestamp:    r.e.now(),
	}
	if err := r.e.sink.Emit(context.WithoutCancel(ctx), ev); err != nil {
		r.log.LogAuditFailure(string(op), versionID, err)
		r.e.metrics.RecordAuditFailure()
	}
}

func (r *Repo) apply(ctx context.Context, b *store.Batch) error {
	if err := r.e.store.Apply(ctx, b); err != nil {
		return translate(err)
	}
	return nil
}
