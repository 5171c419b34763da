package vcs

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/contenthash"
	"github.com/nainya/contentvc/pkg/payload"
)

func TestCreateRootVersion(t *testing.T) {
	f := newFixture(t)
	root := f.root(t, map[string]any{"title": "Hello"})

	assert.True(t, root.IsRoot())
	assert.Equal(t, int64(1), root.Ordinal)
	assert.Equal(t, "main", root.Branch)
	assert.Equal(t, contenthash.Of(root.Payload), root.Hash)
	assert.Equal(t, root.ID, f.head(t, "main"))

	br, err := f.repo.GetBranch(context.Background(), "main")
	require.NoError(t, err)
	assert.Empty(t, br.Base)

	assert.Equal(t, []audit.Operation{audit.OpRootCreate}, f.sink.Operations())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VersionsCreatedTotal))
}

func TestCreateRootVersionOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.root(t, map[string]any{"title": "Hello"})

	_, err := f.repo.CreateRootVersion(ctx, doc(t, map[string]any{"title": "Again"}), "again", "author-1")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 1, f.versionCount(t))
}

func TestCommitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.root(t, map[string]any{"title": "Hello"})

	tests := []struct {
		name    string
		payload payload.Payload
		message string
	}{
		{"empty payload", payload.Payload{}, "msg"},
		{"nil payload", nil, "msg"},
		{"blank message", doc(t, map[string]any{"title": "x"}), "   "},
		{"absent value", payload.Payload{"title": payload.Value{}}, "msg"},
		{"nested absent value", payload.Payload{"seo": payload.Map(payload.Payload{"slug": payload.Value{}})}, "msg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.repo.Commit(ctx, "main", tt.payload, tt.message, "author-1")
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}
	assert.Equal(t, 1, f.versionCount(t))
}

func TestCommitAdvancesBranch(t *testing.T) {
	f := newFixture(t)
	root := f.root(t, map[string]any{"title": "Hello"})
	v := f.commit(t, "main", map[string]any{"title": "Hello", "body": "World"})

	assert.Equal(t, root.ID, v.Parent)
	assert.Empty(t, v.MergeParent)
	assert.Equal(t, int64(2), v.Ordinal)
	assert.Equal(t, contenthash.Of(v.Payload, root.Hash), v.Hash)
	assert.Equal(t, v.ID, f.head(t, "main"))
	assert.Equal(t, []audit.Operation{audit.OpRootCreate, audit.OpCommit}, f.sink.Operations())
}

func TestCommitWithoutChangesIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.root(t, map[string]any{"title": "Hello"})

	_, err := f.repo.Commit(ctx, "main", doc(t, map[string]any{"title": "Hello"}), "same", "author-1")
	assert.True(t, errors.Is(err, ErrNoOpCommit))
	assert.Equal(t, root.ID, f.head(t, "main"))
	assert.Equal(t, 1, f.versionCount(t))
}

func TestCommitUnknownBranch(t *testing.T) {
	f := newFixture(t)
	f.root(t, map[string]any{"title": "Hello"})

	_, err := f.repo.Commit(context.Background(), "nope", doc(t, map[string]any{"title": "x"}), "msg", "author-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCommitBeforeRootFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Commit(context.Background(), "main", doc(t, map[string]any{"title": "x"}), "msg", "author-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCommitCurrentFollowsCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.root(t, map[string]any{"title": "Hello"})
	f.branch(t, "draft", "main")

	_, err := f.repo.Checkout(ctx, "draft")
	require.NoError(t, err)
	v, err := f.repo.CommitCurrent(ctx, doc(t, map[string]any{"title": "Draft"}), "draft edit", "author-1")
	require.NoError(t, err)

	assert.Equal(t, "draft", v.Branch)
	assert.Equal(t, v.ID, f.head(t, "draft"))
	assert.Equal(t, root.ID, f.head(t, "main"))
}

func TestSameContentAndParentsHashEqually(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.root(t, map[string]any{"title": "Hello"})
	f.branch(t, "a", "main")
	f.branch(t, "b", "main")

	va := f.commit(t, "a", map[string]any{"title": "Same"})
	vb := f.commit(t, "b", map[string]any{"title": "Same"})
	assert.NotEqual(t, va.ID, vb.ID)
	assert.Equal(t, va.Hash, vb.Hash)

	other, err := f.eng.Open(ctx, "item-2")
	require.NoError(t, err)
	r1, err := other.CreateRootVersion(ctx, doc(t, map[string]any{"title": "Hello"}), "initial", "someone-else")
	require.NoError(t, err)
	main1, err := f.repo.Get(ctx, f.head(t, "main"))
	require.NoError(t, err)
	assert.Equal(t, main1.Hash, r1.Hash)
}

func TestReturnedVersionsAreCopies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.root(t, map[string]any{"title": "Hello"})

	root.Payload["title"] = payload.String("mutated")
	got, err := f.repo.Get(ctx, root.ID)
	require.NoError(t, err)
	title, _ := got.Payload["title"].Str()
	assert.Equal(t, "Hello", title)
}

func TestGetUnknownVersion(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAuditFailureDoesNotFailCommit(t *testing.T) {
	f := newFixture(t)
	f.sink.Err = errors.New("journal offline")

	f.root(t, map[string]any{"title": "Hello"})
	f.commit(t, "main", map[string]any{"title": "World"})

	assert.Empty(t, f.sink.Events())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.AuditFailuresTotal))
}

func TestAuditEventsCarryActorAndBranch(t *testing.T) {
	f := newFixture(t)
	f.root(t, map[string]any{"title": "Hello"})
	v := f.commit(t, "main", map[string]any{"title": "World"})

	events := f.sink.Events()
	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, f.repo.ID(), last.RepositoryID)
	assert.Equal(t, audit.OpCommit, last.Operation)
	assert.Equal(t, v.ID, last.VersionID)
	assert.Equal(t, "main", last.Branch)
	assert.Equal(t, "author-1", last.Actor)
	assert.False(t, last.Timestamp.IsZero())
}
