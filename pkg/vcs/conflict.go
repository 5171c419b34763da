package vcs

import (
	"context"
	"fmt"
	"time"

	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
)

// ResolveConflict records the value a conflicted field takes in the merge.
// The zero Value resolves by removing the field.
func (r *Repo) ResolveConflict(ctx context.Context, conflictID string, value payload.Value, resolver string) (c *store.Conflict, err error) {
	start := time.Now()
	defer func() { r.observe("conflict_resolve", start, err) }()

	unlock := r.lock()
	defer unlock()

	c, err = r.e.store.GetConflict(ctx, r.repo.ID, conflictID)
	if err != nil {
		return nil, translate(err)
	}
	if c.Status == store.ConflictResolved {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, conflictID)
	}
	if err := checkValue(value, c.Path); err != nil {
		return nil, err
	}
	m, err := r.GetMerge(ctx, c.MergeID)
	if err != nil {
		return nil, err
	}
	if m.State != store.MergeConflicted {
		return nil, validationf("merge %s is %s", m.ID, m.State)
	}

	c.Status = store.ConflictResolved
	c.Resolved = value.Clone()
	c.Resolver = resolver
	c.ResolvedAt = r.e.now()
	if err := r.apply(ctx, store.NewBatch().PutConflict(c)); err != nil {
		return nil, err
	}
	r.e.metrics.RecordResolution()
	r.emit(ctx, audit.OpConflictResolve, "", m.Target, resolver)
	return c.Clone(), nil
}

// CompleteMerge writes the merge version of a paused attempt once every
// conflict is resolved, and advances the target branch to it
func (r *Repo) CompleteMerge(ctx context.Context, mergeID string) (v *store.Version, err error) {
	start := time.Now()
	defer func() { r.observe("merge_complete", start, err) }()

	unlock := r.lock()
	defer unlock()

	m, err := r.GetMerge(ctx, mergeID)
	if err != nil {
		return nil, err
	}
	if m.State != store.MergeConflicted {
		return nil, validationf("merge %s is %s, not conflicted", mergeID, m.State)
	}
	conflicts, err := r.e.store.ListConflicts(ctx, r.repo.ID, mergeID)
	if err != nil {
		return nil, translate(err)
	}
	open := 0
	for _, c := range conflicts {
		if c.Status != store.ConflictResolved {
			open++
		}
	}
	if open > 0 {
		return nil, fmt.Errorf("%w: %d of %d open", ErrUnresolvedConflicts, open, len(conflicts))
	}

	tgt, ours, err := r.branchHead(ctx, m.Target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if tgt.Head != m.TargetHead {
		return nil, fmt.Errorf("%w: %s now at %s", ErrStaleMerge, m.Target, tgt.Head)
	}
	theirs, err := r.Get(ctx, m.SourceHead)
	if err != nil {
		return nil, fmt.Errorf("source head: %w", err)
	}

	merged := m.Merged.Clone()
	if merged == nil {
		merged = payload.Payload{}
	}
	for _, c := range conflicts {
		if err := merged.Set(c.Path, c.Resolved); err != nil {
			return nil, validationf("apply resolution of %s: %v", c.Path.String(), err)
		}
	}
	if merged.IsEmpty() {
		return nil, validationf("resolutions leave the payload empty")
	}

	v = r.mergeVersion(m, merged, ours, theirs)
	m.State = store.MergeCompleted
	m.Result = v.ID
	m.CompletedAt = r.e.now()
	if err := r.advance(ctx, store.NewBatch().InsertVersion(v).PutMerge(m), tgt, v.ID); err != nil {
		return nil, err
	}
	r.e.metrics.RecordVersion()
	r.e.metrics.RecordMerge(string(m.Strategy), string(store.MergeCompleted))
	r.emit(ctx, audit.OpMergeComplete, v.ID, m.Target, m.Author)
	return v.Clone(), nil
}
