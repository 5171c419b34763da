// ABOUTME: Three-way combination of two changesets sharing a base payload
// ABOUTME: Overlapping paths with different outcomes are reported, never guessed

package diff

import (
	"sort"

	"github.com/nainya/contentvc/pkg/payload"
)

// Overlap is a path both sides changed to different results
type Overlap struct {
	Path   payload.Path
	Ours   payload.Value // absent if ours removed the field
	Theirs payload.Value // absent if theirs removed the field
}

// ThreeWayResult is the outcome of ThreeWay
type ThreeWayResult struct {
	// Merged is base plus every non-overlapping change from both sides.
	// Overlapping paths keep their base value.
	Merged    payload.Payload
	Ours      Changeset
	Theirs    Changeset
	Conflicts []Overlap
}

// Clean reports whether no overlap was found
func (r ThreeWayResult) Clean() bool {
	return len(r.Conflicts) == 0
}

// ThreeWay combines the changes base→ours and base→theirs.
// Two changes overlap when one path equals or contains the other; the pair is
// compatible when both sides end with the same value at the shorter path.
func ThreeWay(base, ours, theirs payload.Payload) (ThreeWayResult, error) {
	res := ThreeWayResult{
		Ours:   Compute(base, ours),
		Theirs: Compute(base, theirs),
	}

	var conflicted, agreed []payload.Path
	for _, o := range res.Ours.changes {
		for _, t := range res.Theirs.changes {
			if !o.Path.Overlaps(t.Path) {
				continue
			}
			p := o.Path
			if len(t.Path) < len(p) {
				p = t.Path
			}
			ov, _ := ours.Get(p)
			tv, _ := theirs.Get(p)
			if ov.Equal(tv) {
				agreed = appendUnique(agreed, p)
			} else {
				conflicted = appendUnique(conflicted, p)
			}
		}
	}
	conflicted = outermost(conflicted)
	agreed = outermost(dropCovered(agreed, conflicted))

	merged := base.Clone()
	if merged == nil {
		merged = payload.Payload{}
	}
	covered := append(append([]payload.Path{}, conflicted...), agreed...)
	for _, cs := range []Changeset{res.Ours, res.Theirs} {
		for _, ch := range cs.changes {
			if isCovered(ch.Path, covered) {
				continue
			}
			if err := applyChange(merged, ch); err != nil {
				return ThreeWayResult{}, err
			}
		}
	}
	for _, p := range agreed {
		v, _ := ours.Get(p)
		if err := merged.Set(p, v); err != nil {
			return ThreeWayResult{}, err
		}
	}
	res.Merged = merged

	for _, p := range conflicted {
		ov, _ := ours.Get(p)
		tv, _ := theirs.Get(p)
		res.Conflicts = append(res.Conflicts, Overlap{Path: p, Ours: ov.Clone(), Theirs: tv.Clone()})
	}
	return res, nil
}

func appendUnique(paths []payload.Path, p payload.Path) []payload.Path {
	for _, existing := range paths {
		if existing.Compare(p) == 0 {
			return paths
		}
	}
	return append(paths, p)
}

// outermost keeps only paths with no ancestor in the set, sorted
func outermost(paths []payload.Path) []payload.Path {
	sort.Slice(paths, func(i, j int) bool { return paths[i].Compare(paths[j]) < 0 })
	var out []payload.Path
	for _, p := range paths {
		if !isCovered(p, out) {
			out = append(out, p)
		}
	}
	return out
}

func dropCovered(paths, by []payload.Path) []payload.Path {
	var out []payload.Path
	for _, p := range paths {
		if !isCovered(p, by) {
			out = append(out, p)
		}
	}
	return out
}

func isCovered(p payload.Path, by []payload.Path) bool {
	for _, c := range by {
		if p.HasPrefix(c) {
			return true
		}
	}
	return false
}
