// ABOUTME: Read-through LRU cache of immutable versions in front of any store
// ABOUTME: Concurrent misses for one version share a single backend load

package cached

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nainya/contentvc/pkg/store"
)

// DefaultSize is used when a non-positive size is given
const DefaultSize = 4096

// Observer receives cache outcomes
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// Store caches versions. Versions never change once written, so entries are
// only dropped by eviction or repository deletion. Everything else passes through.
type Store struct {
	store.Store

	cache    *lru.Cache[string, *store.Version]
	group    singleflight.Group
	observer Observer

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Option configures a Store
type Option func(*Store)

// WithObserver reports hits and misses to o
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New wraps backend with a cache holding up to size versions
func New(backend store.Store, size int, opts ...Option) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	s := &Store{Store: backend}
	cache, err := lru.NewWithEvict[string, *store.Version](size, s.handleEviction)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) handleEviction(string, *store.Version) {
	s.evictions.Add(1)
}

func cacheKey(repositoryID, id string) string {
	return repositoryID + "\x00" + id
}

// GetVersion serves from cache, loading once per key on a miss
func (s *Store) GetVersion(ctx context.Context, repositoryID, id string) (*store.Version, error) {
	key := cacheKey(repositoryID, id)
	if v, ok := s.cache.Get(key); ok {
		s.hit()
		return v.Clone(), nil
	}
	s.miss()

	// The load is shared by every waiter, so no single caller may cancel it.
	loadCtx := context.WithoutCancel(ctx)
	res, err, _ := s.group.Do(key, func() (any, error) {
		v, err := s.Store.GetVersion(loadCtx, repositoryID, id)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*store.Version).Clone(), nil
}

// Apply writes through and primes the cache with newly inserted versions
func (s *Store) Apply(ctx context.Context, b *store.Batch) error {
	if err := s.Store.Apply(ctx, b); err != nil {
		return err
	}
	for _, op := range b.Ops {
		if op.Kind == store.OpInsertVersion {
			s.cache.Add(cacheKey(op.Version.RepositoryID, op.Version.ID), op.Version.Clone())
		}
	}
	return nil
}

// DeleteRepository drops the repository and its cached versions
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	if err := s.Store.DeleteRepository(ctx, id); err != nil {
		return err
	}
	prefix := id + "\x00"
	for _, key := range s.cache.Keys() {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			s.cache.Remove(key)
		}
	}
	return nil
}

// Stats returns the current counters
func (s *Store) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Size:      s.cache.Len(),
	}
}

func (s *Store) hit() {
	s.hits.Add(1)
	if s.observer != nil {
		s.observer.CacheHit()
	}
}

func (s *Store) miss() {
	s.misses.Add(1)
	if s.observer != nil {
		s.observer.CacheMiss()
	}
}
