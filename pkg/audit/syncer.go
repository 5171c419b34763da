package audit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSyncInterval is how often the Syncer flushes the journal
const DefaultSyncInterval = time.Second

// Syncer flushes a Journal on a fixed interval
type Syncer struct {
	journal  *Journal
	interval time.Duration
	onError  func(error)

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSyncer creates a syncer. onError, when non-nil, sees every failed flush.
func NewSyncer(j *Journal, interval time.Duration, onError func(error)) *Syncer {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{
		journal:  j,
		interval: interval,
		onError:  onError,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the flush loop in the background. Later calls do nothing.
func (s *Syncer) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

// Stop ends the loop after a final flush. A syncer that never started
// only flushes.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		// Claim the start so a late Start cannot launch the loop.
		s.startOnce.Do(func() {})
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
			return
		}
		s.flush()
	})
}

func (s *Syncer) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stopCh:
			s.flush()
			return
		}
	}
}

func (s *Syncer) flush() {
	if err := s.SyncOnce(); err != nil && s.onError != nil {
		s.onError(err)
	}
}

// SyncOnce flushes the journal now
func (s *Syncer) SyncOnce() error {
	if err := s.journal.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}
