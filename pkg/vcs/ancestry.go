package vcs

import (
	"context"
	"fmt"
	"sort"

	"github.com/nainya/contentvc/pkg/store"
)

// parentsOf loads the parents of v, failing closed on any edge that does not
// lead to a strictly smaller ordinal
func (r *Repo) parentsOf(ctx context.Context, v *store.Version) ([]*store.Version, error) {
	ids := v.Parents()
	out := make([]*store.Version, 0, len(ids))
	for _, id := range ids {
		p, err := r.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("parent of %s: %w", v.ID, err)
		}
		if p.Ordinal >= v.Ordinal {
			return nil, fmt.Errorf("%w: %s (ordinal %d) -> %s (ordinal %d)",
				ErrCyclicAncestry, v.ID, v.Ordinal, p.ID, p.Ordinal)
		}
		out = append(out, p)
	}
	return out, nil
}

// reach is a version found by a breadth-first walk with its edge distance
type reach struct {
	v    *store.Version
	dist int
}

// walk visits id and everything reachable through either parent, breadth first.
// visit returning false stops the walk early.
func (r *Repo) walk(ctx context.Context, id string, visit func(reach) bool) error {
	start, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	seen := map[string]bool{start.ID: true}
	queue := []reach{{v: start}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := queue[0]
		queue = queue[1:]
		if !visit(cur) {
			return nil
		}
		parents, err := r.parentsOf(ctx, cur.v)
		if err != nil {
			return err
		}
		for _, p := range parents {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			queue = append(queue, reach{v: p, dist: cur.dist + 1})
		}
	}
	return nil
}

// Ancestors returns every version reachable from id through either parent,
// excluding id itself, oldest first
func (r *Repo) Ancestors(ctx context.Context, id string) ([]*store.Version, error) {
	var out []*store.Version
	err := r.walk(ctx, id, func(n reach) bool {
		if n.dist > 0 {
			out = append(out, n.v)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return olderFirst(out[i], out[j]) })
	return out, nil
}

// IsAncestor reports whether candidate is a strict ancestor of of
func (r *Repo) IsAncestor(ctx context.Context, candidate, of string) (bool, error) {
	c, err := r.Get(ctx, candidate)
	if err != nil {
		return false, err
	}
	found := false
	err = r.walk(ctx, of, func(n reach) bool {
		if n.dist > 0 && n.v.ID == c.ID {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// distances maps every version reachable from id (including id) to its edge distance
func (r *Repo) distances(ctx context.Context, id string) (map[string]reach, error) {
	out := make(map[string]reach)
	err := r.walk(ctx, id, func(n reach) bool {
		out[n.v.ID] = n
		return true
	})
	return out, err
}

// commonAncestor picks the merge base of a and b. Shared versions that are
// ancestors of another shared version are never candidates; among the rest the
// smallest combined distance wins, then higher ordinal, then smaller id.
func (r *Repo) commonAncestor(ctx context.Context, a, b string) (*store.Version, error) {
	da, err := r.distances(ctx, a)
	if err != nil {
		return nil, err
	}
	db, err := r.distances(ctx, b)
	if err != nil {
		return nil, err
	}

	var shared []*store.Version
	for id, na := range da {
		if _, ok := db[id]; ok {
			shared = append(shared, na.v)
		}
	}
	if len(shared) == 0 {
		return nil, fmt.Errorf("%w: %s and %s share no history", ErrNotFound, a, b)
	}

	// Newest first: a shared version can only be shadowed by one with a
	// higher ordinal, which has already marked everything below it.
	sort.Slice(shared, func(i, j int) bool { return newerFirst(shared[i], shared[j]) })
	shadowed := make(map[string]bool)
	var (
		best     *store.Version
		bestDist int
	)
	for _, v := range shared {
		if shadowed[v.ID] {
			continue
		}
		err := r.walk(ctx, v.ID, func(n reach) bool {
			if n.dist > 0 {
				shadowed[n.v.ID] = true
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		d := da[v.ID].dist + db[v.ID].dist
		switch {
		case best == nil,
			d < bestDist,
			d == bestDist && v.Ordinal > best.Ordinal,
			d == bestDist && v.Ordinal == best.Ordinal && v.ID < best.ID:
			best, bestDist = v, d
		}
	}
	return best, nil
}

// olderFirst orders by ordinal, then creation time, then id
func olderFirst(a, b *store.Version) bool {
	if a.Ordinal != b.Ordinal {
		return a.Ordinal < b.Ordinal
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
