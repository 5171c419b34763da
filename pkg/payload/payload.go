// ABOUTME: Field payload of a content version and field paths into it
// ABOUTME: Iteration is in ascending key order so every consumer sees one canonical order

package payload

import (
	"fmt"
	"strings"
)

// Payload maps field names to values. Keys() gives the canonical iteration order.
type Payload map[string]Value

// FromMap converts a decoded JSON object into a Payload. Null fields are dropped.
func FromMap(m map[string]any) (Payload, error) {
	p := make(Payload, len(m))
	for k, raw := range m {
		if raw == nil {
			continue
		}
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		p[k] = v
	}
	return p, nil
}

// Keys returns field names in ascending order
func (p Payload) Keys() []string {
	return sortedKeys(p)
}

// Len returns the number of top-level fields
func (p Payload) Len() int {
	return len(p)
}

// IsEmpty reports whether p has no fields
func (p Payload) IsEmpty() bool {
	return len(p) == 0
}

// Clone returns a deep copy of p
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports deep equality. Nil and empty payloads are equal.
func (p Payload) Equal(o Payload) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Interface converts p into a map[string]any
func (p Payload) Interface() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

// Get returns the value at path
func (p Payload) Get(path Path) (Value, bool) {
	if len(path) == 0 {
		return Value{}, false
	}
	cur := p
	for i, key := range path {
		v, ok := cur[key]
		if !ok {
			return Value{}, false
		}
		if i == len(path)-1 {
			return v, true
		}
		if v.kind != KindMap {
			return Value{}, false
		}
		cur = v.m
	}
	return Value{}, false
}

// Set stores v at path in place, creating intermediate maps.
// Setting the absent value deletes the field.
func (p Payload) Set(path Path, v Value) error {
	if len(path) == 0 {
		return fmt.Errorf("empty field path")
	}
	if v.IsZero() {
		p.Delete(path)
		return nil
	}
	cur := p
	for i, key := range path[:len(path)-1] {
		next, ok := cur[key]
		if !ok {
			next = Value{kind: KindMap, m: Payload{}}
			cur[key] = next
		}
		if next.kind != KindMap {
			return fmt.Errorf("field %s is a %s, not a map", path[:i+1], next.kind)
		}
		cur = next.m
	}
	cur[path[len(path)-1]] = v.Clone()
	return nil
}

// Delete removes the value at path in place
func (p Payload) Delete(path Path) bool {
	if len(path) == 0 {
		return false
	}
	cur := p
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key]
		if !ok || next.kind != KindMap {
			return false
		}
		cur = next.m
	}
	last := path[len(path)-1]
	if _, ok := cur[last]; !ok {
		return false
	}
	delete(cur, last)
	return true
}

// Path addresses a field, descending through nested maps
type Path []string

// ParsePath parses the dotted form produced by Path.String
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	var (
		out []string
		seg strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			i++
			seg.WriteByte(s[i])
		case s[i] == '.':
			out = append(out, seg.String())
			seg.Reset()
		default:
			seg.WriteByte(s[i])
		}
	}
	return append(out, seg.String())
}

// String joins segments with '.', escaping '.' and '\' inside segments
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		seg = strings.ReplaceAll(seg, `\`, `\\`)
		parts[i] = strings.ReplaceAll(seg, ".", `\.`)
	}
	return strings.Join(parts, ".")
}

// Child returns a new path extended by key
func (p Path) Child(key string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = key
	return out
}

// HasPrefix reports whether prefix addresses p or one of its ancestors
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether one path is a prefix of the other
func (p Path) Overlaps(o Path) bool {
	return p.HasPrefix(o) || o.HasPrefix(p)
}

// Compare orders paths segment by segment
func (p Path) Compare(o Path) int {
	for i := 0; i < len(p) && i < len(o); i++ {
		if c := strings.Compare(p[i], o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p) < len(o):
		return -1
	case len(p) > len(o):
		return 1
	}
	return 0
}
