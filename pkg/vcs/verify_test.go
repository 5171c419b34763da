package vcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/contenthash"
	"github.com/nainya/contentvc/pkg/store"
)

func TestVerifyHealthyRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.root(t, map[string]any{"title": "t", "body": "b"})
	f.branch(t, "feature", "main")
	f.commit(t, "main", map[string]any{"title": "T", "body": "b"})
	f.commit(t, "feature", map[string]any{"title": "t", "body": "B"})
	_, err := f.repo.StartMerge(ctx, MergeRequest{Source: "feature", Target: "main"})
	require.NoError(t, err)

	rep, err := f.repo.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "problems: %v", rep.Problems)
	assert.Equal(t, 4, rep.Versions)
	assert.Equal(t, 2, rep.Branches)
}

func TestVerifyEmptyRepository(t *testing.T) {
	f := newFixture(t)
	rep, err := f.repo.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Zero(t, rep.Versions)
}

func TestVerifyReportsTamperedVersions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.root(t, map[string]any{"title": "t"})

	forged := &store.Version{
		ID:           "forged",
		RepositoryID: f.repo.ID(),
		Ordinal:      2,
		Payload:      doc(t, map[string]any{"title": "forged"}),
		Message:      "forged",
		CreatedAt:    root.CreatedAt,
		Parent:       root.ID,
		Hash:         contenthash.Of(doc(t, map[string]any{"title": "original"}), root.Hash),
	}
	loop := &store.Version{
		ID:           "loop",
		RepositoryID: f.repo.ID(),
		Ordinal:      1,
		Payload:      doc(t, map[string]any{"title": "loop"}),
		Message:      "loop",
		CreatedAt:    root.CreatedAt,
		Parent:       root.ID,
	}
	loop.Hash = contenthash.Of(loop.Payload, root.Hash)
	orphan := &store.Version{
		ID:           "orphan",
		RepositoryID: f.repo.ID(),
		Ordinal:      1,
		Payload:      doc(t, map[string]any{"title": "orphan"}),
		Message:      "orphan",
		CreatedAt:    root.CreatedAt,
	}
	orphan.Hash = contenthash.Of(orphan.Payload)
	b := store.NewBatch().InsertVersion(forged).InsertVersion(loop).InsertVersion(orphan)
	require.NoError(t, f.eng.Store().Apply(ctx, b))

	rep, err := f.repo.Verify(ctx)
	require.NoError(t, err)
	require.False(t, rep.OK())

	kinds := map[ProblemKind][]string{}
	for _, p := range rep.Problems {
		kinds[p.Kind] = append(kinds[p.Kind], p.VersionID)
		assert.NotEmpty(t, p.String())
	}
	assert.Equal(t, []string{"forged"}, kinds[ProblemHashMismatch])
	assert.Equal(t, []string{"loop"}, kinds[ProblemOrdinal])
	assert.Len(t, kinds[ProblemRootCount], 1)
	assert.Empty(t, kinds[ProblemMissingParent])
	assert.Empty(t, kinds[ProblemMissingHead])
}
