package audit

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// recordType tags what a journal record holds
type recordType byte

const (
	recordEvent recordType = 1
	recordSync  recordType = 2
)

const (
	// headerSize layout: Seq(8) + Type(1) + Reserved(3) + BodyLen(4) + Timestamp(8)
	headerSize = 24
	crcSize    = 4
)

// record is one framed journal entry
type record struct {
	Seq       uint64
	Type      recordType
	Body      []byte
	Timestamp time.Time
}

// encode frames the record as [header][body][crc32]
func (r *record) encode() []byte {
	buf := make([]byte, headerSize+len(r.Body)+crcSize)

	binary.LittleEndian.PutUint64(buf[0:8], r.Seq)
	buf[8] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(r.Body)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.Timestamp.UnixNano()))

	n := copy(buf[headerSize:], r.Body) + headerSize
	binary.LittleEndian.PutUint32(buf[n:], crc32.ChecksumIEEE(buf[:n]))
	return buf
}

// bodyLen reads the body length out of a header
func bodyLen(header []byte) int {
	return int(binary.LittleEndian.Uint32(header[12:16]))
}

// decodeRecord parses one framed record
func decodeRecord(data []byte) (*record, error) {
	if len(data) < headerSize+crcSize {
		return nil, ErrTruncated
	}
	n := headerSize + bodyLen(data)
	if len(data) < n+crcSize {
		return nil, ErrTruncated
	}
	if binary.LittleEndian.Uint32(data[n:]) != crc32.ChecksumIEEE(data[:n]) {
		return nil, ErrCorrupted
	}

	r := &record{
		Seq:       binary.LittleEndian.Uint64(data[0:8]),
		Type:      recordType(data[8]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(data[16:24]))).UTC(),
	}
	if n > headerSize {
		r.Body = append([]byte(nil), data[headerSize:n]...)
	}
	return r, nil
}

func eventBody(ev Event) ([]byte, error) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"repository_id": structpb.NewStringValue(ev.RepositoryID),
		"operation":     structpb.NewStringValue(string(ev.Operation)),
		"version_id":    structpb.NewStringValue(ev.VersionID),
		"branch":        structpb.NewStringValue(ev.Branch),
		"actor":         structpb.NewStringValue(ev.Actor),
	}}
	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return body, nil
}

func eventFromRecord(r *record) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(r.Body, &s); err != nil {
		return Event{}, fmt.Errorf("decode event %d: %w", r.Seq, err)
	}
	str := func(k string) string { return s.GetFields()[k].GetStringValue() }
	return Event{
		Seq:          r.Seq,
		RepositoryID: str("repository_id"),
		Operation:    Operation(str("operation")),
		VersionID:    str("version_id"),
		Branch:       str("branch"),
		Actor:        str("actor"),
		Timestamp:    r.Timestamp,
	}, nil
}
