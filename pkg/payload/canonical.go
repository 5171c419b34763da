// ABOUTME: Canonical byte serialization of payloads for content addressing
// ABOUTME: Type-tagged, length-prefixed, keys sorted, nested structures recursive

package payload

import (
	"encoding/binary"
	"math"
)

// Type tags for the canonical form
const (
	tagAbsent = 'z'
	tagString = 's'
	tagNumber = 'n'
	tagBool   = 'b'
	tagList   = 'l'
	tagMap    = 'm'
)

// Canonical returns the canonical serialization of p.
// Equal payloads always produce identical bytes.
func (p Payload) Canonical() []byte {
	return appendMap(make([]byte, 0, 256), p)
}

// Canonical returns the canonical serialization of v
func (v Value) Canonical() []byte {
	return appendValue(make([]byte, 0, 64), v)
}

func appendValue(out []byte, v Value) []byte {
	switch v.kind {
	case KindString:
		out = append(out, tagString)
		return appendBytes(out, []byte(v.str))
	case KindNumber:
		out = append(out, tagNumber)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v.num))
		return append(out, buf[:]...)
	case KindBool:
		out = append(out, tagBool)
		if v.b {
			return append(out, 1)
		}
		return append(out, 0)
	case KindList:
		out = append(out, tagList)
		out = binary.AppendUvarint(out, uint64(len(v.list)))
		for _, item := range v.list {
			out = appendValue(out, item)
		}
		return out
	case KindMap:
		return appendMap(out, v.m)
	}
	return append(out, tagAbsent)
}

func appendMap(out []byte, p Payload) []byte {
	out = append(out, tagMap)
	out = binary.AppendUvarint(out, uint64(len(p)))
	for _, k := range p.Keys() {
		out = appendBytes(out, []byte(k))
		out = appendValue(out, p[k])
	}
	return out
}

func appendBytes(out, b []byte) []byte {
	out = binary.AppendUvarint(out, uint64(len(b)))
	return append(out, b...)
}
