// ABOUTME: Field-level changesets between two payloads
// ABOUTME: Descends nested maps; scalars, lists and kind changes compare atomically

package diff

import (
	"fmt"
	"sort"

	"github.com/nainya/contentvc/pkg/payload"
)

// Op is the kind of a field change
type Op uint8

const (
	OpAdded Op = iota + 1
	OpRemoved
	OpModified
)

// String returns the op name
func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpRemoved:
		return "removed"
	case OpModified:
		return "modified"
	}
	return "unknown"
}

// Change is one field-level difference
type Change struct {
	Path payload.Path
	Op   Op
	Old  payload.Value // absent for OpAdded
	New  payload.Value // absent for OpRemoved
}

// Result returns the field value after the change (absent when removed)
func (c Change) Result() payload.Value {
	return c.New
}

// Modification pairs the old and new value of a modified field
type Modification struct {
	Old payload.Value
	New payload.Value
}

// Changeset is the ordered set of changes between two payloads
type Changeset struct {
	changes []Change
}

// Compute returns the changes that turn from into to
func Compute(from, to payload.Payload) Changeset {
	var cs Changeset
	walk(nil, from, to, &cs.changes)
	return cs
}

func walk(prefix payload.Path, from, to payload.Payload, out *[]Change) {
	for _, key := range unionKeys(from, to) {
		path := prefix.Child(key)
		oldV, inFrom := from[key]
		newV, inTo := to[key]
		switch {
		case inFrom && !inTo:
			*out = append(*out, Change{Path: path, Op: OpRemoved, Old: oldV.Clone()})
		case !inFrom && inTo:
			*out = append(*out, Change{Path: path, Op: OpAdded, New: newV.Clone()})
		case oldV.Kind() == payload.KindMap && newV.Kind() == payload.KindMap:
			oldM, _ := oldV.Fields()
			newM, _ := newV.Fields()
			walk(path, oldM, newM, out)
		case !oldV.Equal(newV):
			*out = append(*out, Change{Path: path, Op: OpModified, Old: oldV.Clone(), New: newV.Clone()})
		}
	}
}

func unionKeys(a, b payload.Payload) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// HasChanges reports whether the changeset is non-empty
func (c Changeset) HasChanges() bool {
	return len(c.changes) > 0
}

// Len returns the number of changes
func (c Changeset) Len() int {
	return len(c.changes)
}

// Changes returns all changes ordered by path
func (c Changeset) Changes() []Change {
	out := make([]Change, len(c.changes))
	copy(out, c.changes)
	return out
}

// Paths returns the changed paths in order
func (c Changeset) Paths() []payload.Path {
	out := make([]payload.Path, len(c.changes))
	for i, ch := range c.changes {
		out[i] = ch.Path
	}
	return out
}

// Added returns added fields keyed by path
func (c Changeset) Added() map[string]payload.Value {
	out := make(map[string]payload.Value)
	for _, ch := range c.changes {
		if ch.Op == OpAdded {
			out[ch.Path.String()] = ch.New
		}
	}
	return out
}

// Removed returns removed fields and their old values keyed by path
func (c Changeset) Removed() map[string]payload.Value {
	out := make(map[string]payload.Value)
	for _, ch := range c.changes {
		if ch.Op == OpRemoved {
			out[ch.Path.String()] = ch.Old
		}
	}
	return out
}

// Modified returns modified fields keyed by path
func (c Changeset) Modified() map[string]Modification {
	out := make(map[string]Modification)
	for _, ch := range c.changes {
		if ch.Op == OpModified {
			out[ch.Path.String()] = Modification{Old: ch.Old, New: ch.New}
		}
	}
	return out
}

// Apply returns a copy of base with every change applied
func (c Changeset) Apply(base payload.Payload) (payload.Payload, error) {
	out := base.Clone()
	if out == nil {
		out = payload.Payload{}
	}
	for _, ch := range c.changes {
		if err := applyChange(out, ch); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyChange(p payload.Payload, ch Change) error {
	if ch.Op == OpRemoved {
		p.Delete(ch.Path)
		return nil
	}
	if err := p.Set(ch.Path, ch.New); err != nil {
		return fmt.Errorf("apply %s %s: %w", ch.Op, ch.Path, err)
	}
	return nil
}
