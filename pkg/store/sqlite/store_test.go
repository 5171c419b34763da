package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
	"github.com/nainya/contentvc/pkg/store/storetest"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTempStore(t) })
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "versions.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	b := store.NewBatch().
		CreateRepository(storetest.Repo("r1", "item-1")).
		InsertVersion(storetest.Version("r1", "v1", 1, payload.Payload{"title": payload.String("kept")})).
		CreateBranch(storetest.Branch("r1", "main", "v1"))
	if err := s.Apply(ctx, b); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Migrations must be idempotent across reopen.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	v, err := s.GetVersion(ctx, "r1", "v1")
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if !v.Payload["title"].Equal(payload.String("kept")) {
		t.Fatalf("payload = %v, want title kept", v.Payload)
	}
	br, err := s.GetBranch(ctx, "r1", "main")
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	if br.Head != "v1" {
		t.Fatalf("head = %q, want v1", br.Head)
	}
}

func TestUpSection(t *testing.T) {
	t.Parallel()

	got := upSection("-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n")
	if got != "\nCREATE TABLE a (x);\n" {
		t.Fatalf("up section = %q", got)
	}
	if got := upSection("CREATE TABLE b (y);"); got != "CREATE TABLE b (y);" {
		t.Fatalf("plain file = %q", got)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "versions.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
