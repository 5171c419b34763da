// ABOUTME: Merge engine: fast-forward, three-way and squash merges between branches
// ABOUTME: Conflicting merges pause as attempts until every conflict is resolved

package vcs

import (
	"context"
	"fmt"
	"time"

	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/diff"
	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
)

// MergeRequest asks to merge Source into Target
type MergeRequest struct {
	Source   string
	Target   string
	Strategy store.MergeStrategy // defaults to fast-forward
	Message  string              // defaults to "Merge <source> into <target>"
	Author   string
}

// MergeResult describes how a merge attempt ended
type MergeResult struct {
	Attempt *store.MergeAttempt

	// Path is the state the attempt passed through: MergeFastForward,
	// MergeClean or MergeConflicted. It is MergeCompleted when there was
	// nothing to merge.
	Path store.MergeState

	// Version is the merge or squash version, nil when no version was written
	Version *store.Version

	// Head is the target head after the merge
	Head string

	Conflicts []*store.Conflict
}

// UpToDate reports whether the target already contained the source
func (m *MergeResult) UpToDate() bool { return m.Path == store.MergeCompleted }

// FastForward reports whether the target head was only advanced
func (m *MergeResult) FastForward() bool { return m.Path == store.MergeFastForward }

// Conflicted reports whether the attempt is paused on conflicts
func (m *MergeResult) Conflicted() bool { return m.Path == store.MergeConflicted }

func normalizeStrategy(s store.MergeStrategy) (store.MergeStrategy, error) {
	switch s {
	case "":
		return store.StrategyFastForward, nil
	case store.StrategyFastForward, store.StrategyThreeWay, store.StrategySquash:
		return s, nil
	}
	return "", validationf("unknown merge strategy %q", s)
}

// StartMerge merges req.Source into req.Target
func (r *Repo) StartMerge(ctx context.Context, req MergeRequest) (res *MergeResult, err error) {
	start := time.Now()
	defer func() { r.observe("merge", start, err) }()

	strategy, err := normalizeStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	if req.Source == req.Target {
		return nil, validationf("cannot merge branch %q into itself", req.Source)
	}
	if req.Message == "" {
		req.Message = fmt.Sprintf("Merge %s into %s", req.Source, req.Target)
	}

	unlock := r.lock()
	defer unlock()

	_, srcHead, err := r.branchHead(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	tgt, tgtHead, err := r.branchHead(ctx, req.Target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	m := &store.MergeAttempt{
		ID:           r.e.newID(),
		RepositoryID: r.repo.ID,
		Source:       req.Source,
		Target:       req.Target,
		SourceHead:   srcHead.ID,
		TargetHead:   tgtHead.ID,
		Strategy:     strategy,
		State:        store.MergeStarted,
		Message:      req.Message,
		Author:       req.Author,
		CreatedAt:    r.e.now(),
	}

	srcInTarget := srcHead.ID == tgtHead.ID
	if !srcInTarget {
		if srcInTarget, err = r.IsAncestor(ctx, srcHead.ID, tgtHead.ID); err != nil {
			return nil, err
		}
	}
	tgtInSource := false
	if !srcInTarget {
		if tgtInSource, err = r.IsAncestor(ctx, tgtHead.ID, srcHead.ID); err != nil {
			return nil, err
		}
	}

	switch {
	case srcInTarget:
		m.Base = srcHead.ID
		res, err = r.finishUpToDate(ctx, m)
	case tgtInSource && strategy == store.StrategyFastForward:
		m.Base = tgtHead.ID
		res, err = r.fastForward(ctx, m, tgt)
	case tgtInSource:
		m.Base = tgtHead.ID
		res, err = r.combine(ctx, m, tgt, tgtHead, tgtHead, srcHead)
	default:
		var base *store.Version
		if base, err = r.commonAncestor(ctx, srcHead.ID, tgtHead.ID); err != nil {
			return nil, err
		}
		m.Base = base.ID
		res, err = r.combine(ctx, m, tgt, base, tgtHead, srcHead)
	}
	if err != nil {
		return nil, err
	}
	r.e.metrics.RecordMerge(string(strategy), string(res.Path))
	return res, nil
}

// finishUpToDate records an attempt whose source is already in the target
func (r *Repo) finishUpToDate(ctx context.Context, m *store.MergeAttempt) (*MergeResult, error) {
	m.State = store.MergeCompleted
	m.Result = m.TargetHead
	m.CompletedAt = r.e.now()
	if err := r.apply(ctx, store.NewBatch().PutMerge(m)); err != nil {
		return nil, err
	}
	return &MergeResult{Attempt: m.Clone(), Path: store.MergeCompleted, Head: m.TargetHead}, nil
}

// fastForward moves the target head onto the source head without a new version
func (r *Repo) fastForward(ctx context.Context, m *store.MergeAttempt, tgt *store.Branch) (*MergeResult, error) {
	m.State = store.MergeCompleted
	m.Result = m.SourceHead
	m.CompletedAt = r.e.now()
	if err := r.advance(ctx, store.NewBatch().PutMerge(m), tgt, m.SourceHead); err != nil {
		return nil, err
	}
	r.emit(ctx, audit.OpMergeComplete, m.SourceHead, m.Target, m.Author)
	return &MergeResult{Attempt: m.Clone(), Path: store.MergeFastForward, Head: m.SourceHead}, nil
}

// combine runs a three-way or squash merge from base
func (r *Repo) combine(ctx context.Context, m *store.MergeAttempt, tgt *store.Branch, base, ours, theirs *store.Version) (*MergeResult, error) {
	tw, err := diff.ThreeWay(base.Payload, ours.Payload, theirs.Payload)
	if err != nil {
		return nil, err
	}
	m.Merged = tw.Merged

	if !tw.Clean() {
		return r.pause(ctx, m, tw.Conflicts)
	}
	if tw.Merged.IsEmpty() {
		return nil, validationf("merging %s into %s leaves the payload empty", m.Source, m.Target)
	}

	// A squash that brings nothing new leaves the target as it is.
	if m.Strategy == store.StrategySquash && tw.Merged.Equal(ours.Payload) {
		return r.finishUpToDate(ctx, m)
	}

	v := r.mergeVersion(m, tw.Merged, ours, theirs)
	m.State = store.MergeCompleted
	m.Result = v.ID
	m.CompletedAt = r.e.now()
	b := store.NewBatch().InsertVersion(v).PutMerge(m)
	if err := r.advance(ctx, b, tgt, v.ID); err != nil {
		return nil, err
	}
	r.e.metrics.RecordVersion()
	r.emit(ctx, audit.OpMergeComplete, v.ID, m.Target, m.Author)
	return &MergeResult{Attempt: m.Clone(), Path: store.MergeClean, Version: v.Clone(), Head: v.ID}, nil
}

// mergeVersion builds the version a merge writes: two parents, or only the
// target head for a squash
func (r *Repo) mergeVersion(m *store.MergeAttempt, p payload.Payload, ours, theirs *store.Version) *store.Version {
	if m.Strategy == store.StrategySquash {
		return r.newVersion(p, m.Message, m.Author, m.Target, ours)
	}
	return r.newVersion(p, m.Message, m.Author, m.Target, ours, theirs)
}

// pause persists a conflicted attempt with its conflicts in path order
func (r *Repo) pause(ctx context.Context, m *store.MergeAttempt, overlaps []diff.Overlap) (*MergeResult, error) {
	m.State = store.MergeConflicted
	b := store.NewBatch().PutMerge(m)
	conflicts := make([]*store.Conflict, 0, len(overlaps))
	for i, o := range overlaps {
		c := &store.Conflict{
			ID:           r.e.newID(),
			RepositoryID: r.repo.ID,
			MergeID:      m.ID,
			Seq:          i,
			Ours:         m.TargetHead,
			Theirs:       m.SourceHead,
			Path:         o.Path,
			OursValue:    o.Ours,
			TheirsValue:  o.Theirs,
			Status:       store.ConflictOpen,
		}
		conflicts = append(conflicts, c)
		b.PutConflict(c)
	}
	if err := r.apply(ctx, b); err != nil {
		return nil, err
	}
	r.e.metrics.RecordConflicts(len(conflicts))
	r.log.Info("merge paused on conflicts").
		Str("merge_id", m.ID).
		Str("source", m.Source).
		Str("target", m.Target).
		Int("conflicts", len(conflicts)).
		Send()

	out := make([]*store.Conflict, len(conflicts))
	for i, c := range conflicts {
		out[i] = c.Clone()
	}
	return &MergeResult{Attempt: m.Clone(), Path: store.MergeConflicted, Head: m.TargetHead, Conflicts: out}, nil
}

// GetMerge returns a merge attempt
func (r *Repo) GetMerge(ctx context.Context, id string) (*store.MergeAttempt, error) {
	m, err := r.e.store.GetMerge(ctx, r.repo.ID, id)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// Conflicts returns the conflicts of a merge attempt in path order
func (r *Repo) Conflicts(ctx context.Context, mergeID string) ([]*store.Conflict, error) {
	if _, err := r.GetMerge(ctx, mergeID); err != nil {
		return nil, err
	}
	list, err := r.e.store.ListConflicts(ctx, r.repo.ID, mergeID)
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

// AbortMerge abandons a paused attempt. Its conflicts stay on record.
func (r *Repo) AbortMerge(ctx context.Context, mergeID string) (err error) {
	start := time.Now()
	defer func() { r.observe("merge_abort", start, err) }()

	unlock := r.lock()
	defer unlock()

	m, err := r.GetMerge(ctx, mergeID)
	if err != nil {
		return err
	}
	if m.State != store.MergeConflicted {
		return validationf("merge %s is %s, not conflicted", mergeID, m.State)
	}
	m.State = store.MergeAborted
	m.CompletedAt = r.e.now()
	if err := r.apply(ctx, store.NewBatch().PutMerge(m)); err != nil {
		return err
	}
	r.e.metrics.RecordMerge(string(m.Strategy), string(store.MergeAborted))
	return nil
}
