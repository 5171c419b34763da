package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxFileSize is the size at which the journal rotates to a new file (64MB)
	DefaultMaxFileSize = 64 << 20

	// DefaultMaxFiles is how many journal files are kept after rotation
	DefaultMaxFiles = 8
)

// Journal is a durable append-only Sink. Records go to <path>.000, <path>.001, ...
type Journal struct {
	path        string
	maxFileSize int64
	maxFiles    int

	mu        sync.Mutex
	fd        *os.File
	seq       uint64
	fileSize  int64
	fileIndex int
	dirty     bool
	closed    bool
}

// JournalOption configures a Journal
type JournalOption func(*Journal)

// WithMaxFileSize sets the rotation threshold
func WithMaxFileSize(n int64) JournalOption {
	return func(j *Journal) { j.maxFileSize = n }
}

// WithMaxFiles sets how many files survive rotation
func WithMaxFiles(n int) JournalOption {
	return func(j *Journal) { j.maxFiles = n }
}

var _ Sink = (*Journal)(nil)

// OpenJournal opens or creates the journal rooted at path
func OpenJournal(path string, opts ...JournalOption) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	j := &Journal{
		path:        filepath.Clean(path),
		maxFileSize: DefaultMaxFileSize,
		maxFiles:    DefaultMaxFiles,
	}
	for _, opt := range opts {
		opt(j)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return nil, err
	}

	files, err := j.files()
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		latest := files[len(files)-1]
		if err := repairTail(latest); err != nil {
			return nil, err
		}
		// The newest file may be empty right after a rotation.
		for i := len(files) - 1; i >= 0 && j.seq == 0; i-- {
			records, err := readFile(files[i])
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", files[i], err)
			}
			for _, r := range records {
				if r.Seq > j.seq {
					j.seq = r.Seq
				}
			}
		}
		j.fileIndex = j.indexOf(latest)
	}
	if err := j.openFile(j.fileIndex); err != nil {
		return nil, err
	}
	return j, nil
}

// Path returns the base path of the journal
func (j *Journal) Path() string {
	return j.path
}

// Emit appends ev as the next record. Events are durable after the next Sync.
func (j *Journal) Emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := eventBody(ev)
	if err != nil {
		return err
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	j.seq++
	return j.writeNoLock(&record{Seq: j.seq, Type: recordEvent, Body: body, Timestamp: ts})
}

// Sync flushes written records to stable storage and appends a sync marker
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	if !j.dirty {
		return nil
	}
	if err := j.writeNoLock(&record{Seq: j.seq, Type: recordSync, Timestamp: time.Now()}); err != nil {
		return err
	}
	if err := j.fd.Sync(); err != nil {
		return err
	}
	j.dirty = false
	return nil
}

// Seq returns the sequence number of the last event written
func (j *Journal) Seq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Close syncs and closes the current file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return errors.Join(j.fd.Sync(), j.fd.Close())
}

// writeNoLock writes one record, rotating first if it would overflow (caller holds mu)
func (j *Journal) writeNoLock(r *record) error {
	data := r.encode()
	if j.fileSize > 0 && j.fileSize+int64(len(data)) > j.maxFileSize {
		if err := j.rotateNoLock(); err != nil {
			return err
		}
	}
	n, err := j.fd.Write(data)
	j.fileSize += int64(n)
	if err != nil {
		return err
	}
	if r.Type == recordEvent {
		j.dirty = true
	}
	return nil
}

// rotateNoLock moves to the next file and prunes old ones (caller holds mu)
func (j *Journal) rotateNoLock() error {
	if err := j.fd.Sync(); err != nil {
		return err
	}
	if err := j.fd.Close(); err != nil {
		return err
	}
	if err := j.openFile(j.fileIndex + 1); err != nil {
		return err
	}

	files, err := j.files()
	if err != nil {
		return err
	}
	if len(files) > j.maxFiles {
		for _, f := range files[:len(files)-j.maxFiles] {
			if err := os.Remove(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (j *Journal) openFile(index int) error {
	fd, err := os.OpenFile(j.filePath(index), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	stat, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return err
	}
	j.fd = fd
	j.fileIndex = index
	j.fileSize = stat.Size()
	return nil
}

func (j *Journal) filePath(index int) string {
	return fmt.Sprintf("%s.%03d", j.path, index)
}

func (j *Journal) indexOf(file string) int {
	suffix := strings.TrimPrefix(filepath.Base(file), filepath.Base(j.path)+".")
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0
	}
	return n
}

// files returns the journal files sorted by index
func (j *Journal) files() ([]string, error) {
	return journalFiles(j.path)
}

func journalFiles(path string) ([]string, error) {
	dir, base := filepath.Dir(path), filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type indexed struct {
		path  string
		index int
	}
	var found []indexed
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, base+".") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, base+"."))
		if err != nil {
			continue
		}
		found = append(found, indexed{filepath.Join(dir, name), n})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].index < found[b].index })

	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.path
	}
	return out, nil
}

// readFile decodes every record in one file. A torn tail yields the records
// before it together with ErrTruncated.
func readFile(file string) ([]*record, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	var out []*record
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(fd, header); err != nil {
			if err == io.EOF {
				return out, nil
			}
			if err == io.ErrUnexpectedEOF {
				return out, ErrTruncated
			}
			return out, err
		}
		data := make([]byte, headerSize+bodyLen(header)+crcSize)
		copy(data, header)
		if _, err := io.ReadFull(fd, data[headerSize:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return out, ErrTruncated
			}
			return out, err
		}
		r, err := decodeRecord(data)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}

// repairTail cuts a torn record off the end of file so appends stay readable
func repairTail(file string) error {
	records, err := readFile(file)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrTruncated) {
		return fmt.Errorf("scan %s: %w", file, err)
	}
	var size int64
	for _, r := range records {
		size += int64(headerSize + len(r.Body) + crcSize)
	}
	return os.Truncate(file, size)
}

// ReadAll replays every event in the journal rooted at path, oldest first.
// A torn record at the very end of the newest file is ignored; corruption
// anywhere else fails the replay.
func ReadAll(path string) ([]Event, error) {
	files, err := journalFiles(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrJournalNotFound
	}

	var events []Event
	for i, file := range files {
		records, err := readFile(file)
		if err != nil {
			last := i == len(files)-1
			if !(last && errors.Is(err, ErrTruncated)) {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		for _, r := range records {
			if r.Type != recordEvent {
				continue
			}
			ev, err := eventFromRecord(r)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return events, nil
}
