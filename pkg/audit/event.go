package audit

import (
	"context"
	"sync"
	"time"
)

// Operation names an audited mutation
type Operation string

const (
	OpRootCreate      Operation = "root_create"
	OpCommit          Operation = "commit"
	OpBranchCreate    Operation = "branch_create"
	OpBranchDelete    Operation = "branch_delete"
	OpMergeComplete   Operation = "merge_complete"
	OpConflictResolve Operation = "conflict_resolve"
	OpRollback        Operation = "rollback"
)

// Event is one audited mutation
type Event struct {
	Seq          uint64 // assigned by the journal, zero elsewhere
	RepositoryID string
	Operation    Operation
	VersionID    string
	Branch       string
	Actor        string
	Timestamp    time.Time
}

// Sink receives events. Emit must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Discard drops every event
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) error { return nil }

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event

	// Err, when set, is returned from Emit and the event is not kept
	Err error
}

// Emit appends ev
func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of what was recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Operations returns the recorded operation names in order
func (r *Recorder) Operations() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Operation, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Operation
	}
	return out
}

// Reset forgets all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
