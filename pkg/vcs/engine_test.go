package vcs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/store/memory"
)

type fakeCatalog map[string]bool

func (c fakeCatalog) ContentItemExists(_ context.Context, id string) (bool, error) {
	if id == "broken" {
		return false, errors.New("catalog unavailable")
	}
	return c[id], nil
}

func TestOpenCreatesRepositoryOnce(t *testing.T) {
	ctx := context.Background()
	eng := New(memory.New())

	a, err := eng.Open(ctx, "item-1")
	require.NoError(t, err)
	b, err := eng.Open(ctx, "item-1")
	require.NoError(t, err)

	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, "item-1", a.ContentItemID())
	assert.Equal(t, DefaultBranch, a.DefaultBranch())
	assert.Equal(t, DefaultBranch, a.CurrentBranch())

	c, err := eng.Open(ctx, "item-2")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestOpenValidatesContentItem(t *testing.T) {
	ctx := context.Background()
	eng := New(memory.New(), WithContentResolver(fakeCatalog{"known": true}))

	_, err := eng.Open(ctx, "")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = eng.Open(ctx, "unknown")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = eng.Open(ctx, "broken")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = eng.Open(ctx, "known")
	assert.NoError(t, err)
}

func TestCustomDefaultBranch(t *testing.T) {
	f := newFixture(t, WithDefaultBranch("trunk"))
	f.root(t, map[string]any{"title": "t"})

	assert.Equal(t, "trunk", f.repo.CurrentBranch())
	_, err := f.repo.GetBranch(context.Background(), "trunk")
	assert.NoError(t, err)
	assert.True(t, errors.Is(f.repo.DeleteBranch(context.Background(), "trunk"), ErrProtectedBranch))
}

func TestHandlesKeepTheirOwnCurrentBranch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.root(t, map[string]any{"title": "t"})
	f.branch(t, "feature", "main")

	other, err := f.eng.Open(ctx, "item-1")
	require.NoError(t, err)
	_, err = other.Checkout(ctx, "feature")
	require.NoError(t, err)

	assert.Equal(t, "feature", other.CurrentBranch())
	assert.Equal(t, "main", f.repo.CurrentBranch())
}

func TestDeleteRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.root(t, map[string]any{"title": "t"})

	require.NoError(t, f.eng.DeleteRepository(ctx, "item-1"))
	assert.True(t, errors.Is(f.eng.DeleteRepository(ctx, "item-1"), ErrNotFound))

	fresh, err := f.eng.Open(ctx, "item-1")
	require.NoError(t, err)
	assert.NotEqual(t, f.repo.ID(), fresh.ID())
	_, err = fresh.GetBranch(ctx, "main")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteRepositoryReleasesLocks(t *testing.T) {
	ctx := context.Background()
	eng := New(memory.New(), WithIDGenerator(sequentialIDs()), WithClock(tickingClock()))

	for i := 0; i < 3; i++ {
		repo, err := eng.Open(ctx, "churn")
		require.NoError(t, err)
		_, err = repo.CreateRootVersion(ctx, doc(t, map[string]any{"title": "t"}), "initial", "author-1")
		require.NoError(t, err)
		require.NoError(t, eng.DeleteRepository(ctx, "churn"))
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Empty(t, eng.locks)
}
