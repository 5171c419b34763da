package vcs

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/diff"
	"github.com/nainya/contentvc/pkg/store"
)

// newest is a max-heap of versions, newest first
type newest []*store.Version

func (h newest) Len() int           { return len(h) }
func (h newest) Less(i, j int) bool { return newerFirst(h[i], h[j]) }
func (h newest) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *newest) Push(x any)        { *h = append(*h, x.(*store.Version)) }
func (h *newest) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}

// newerFirst orders by ordinal desc, then creation time desc, then id
func newerFirst(a, b *store.Version) bool {
	if a.Ordinal != b.Ordinal {
		return a.Ordinal > b.Ordinal
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// History returns the head of branch and its ancestors, newest first.
// limit <= 0 returns everything.
//
// Ordinals strictly decrease along parent edges, so popping the newest
// version off the frontier always yields the next version in order and the
// walk stops as soon as limit versions are out.
func (r *Repo) History(ctx context.Context, branch string, limit int) ([]*store.Version, error) {
	_, head, err := r.branchHead(ctx, branch)
	if err != nil {
		return nil, err
	}

	var out []*store.Version
	seen := map[string]bool{head.ID: true}
	frontier := &newest{head}
	for frontier.Len() > 0 && (limit <= 0 || len(out) < limit) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := heap.Pop(frontier).(*store.Version)
		out = append(out, v)

		parents, err := r.parentsOf(ctx, v)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if !seen[p.ID] {
				seen[p.ID] = true
				heap.Push(frontier, p)
			}
		}
	}
	return out, nil
}

// Compare diffs the payloads of two versions, in either direction
func (r *Repo) Compare(ctx context.Context, from, to string) (diff.Changeset, error) {
	a, err := r.Get(ctx, from)
	if err != nil {
		return diff.Changeset{}, err
	}
	b, err := r.Get(ctx, to)
	if err != nil {
		return diff.Changeset{}, err
	}
	return diff.Compute(a.Payload, b.Payload), nil
}

// RollbackTo commits the payload of versionID on top of the current branch.
// Nothing is rewritten: the new version simply restores the old content.
func (r *Repo) RollbackTo(ctx context.Context, versionID, author string) (v *store.Version, err error) {
	start := time.Now()
	defer func() { r.observe("rollback", start, err) }()

	unlock := r.lock()
	defer unlock()

	target, err := r.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	branch := r.CurrentBranch()
	br, head, err := r.branchHead(ctx, branch)
	if err != nil {
		return nil, err
	}
	if head.Payload.Equal(target.Payload) {
		return nil, ErrNoOpCommit
	}

	msg := fmt.Sprintf("Rollback to version %d (%s)", target.Ordinal, target.ID)
	v = r.newVersion(target.Payload, msg, author, branch, head)
	if err := r.advance(ctx, store.NewBatch().InsertVersion(v), br, v.ID); err != nil {
		return nil, err
	}
	r.e.metrics.RecordVersion()
	r.emit(ctx, audit.OpRollback, v.ID, branch, author)
	return v.Clone(), nil
}
