// ABOUTME: Behavioural checks every store.Store implementation must pass
// ABOUTME: Backends call Run from their own tests with a constructor

package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/contenthash"
	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("RepositoryRoundTrip", func(t *testing.T) { testRepositoryRoundTrip(t, newStore(t)) })
	t.Run("DuplicateContentItem", func(t *testing.T) { testDuplicateContentItem(t, newStore(t)) })
	t.Run("VersionRoundTrip", func(t *testing.T) { testVersionRoundTrip(t, newStore(t)) })
	t.Run("VersionNeedsKnownParents", func(t *testing.T) { testVersionNeedsKnownParents(t, newStore(t)) })
	t.Run("BatchIsAtomic", func(t *testing.T) { testBatchIsAtomic(t, newStore(t)) })
	t.Run("BranchLifecycle", func(t *testing.T) { testBranchLifecycle(t, newStore(t)) })
	t.Run("GuardedMove", func(t *testing.T) { testGuardedMove(t, newStore(t)) })
	t.Run("MergesAndConflicts", func(t *testing.T) { testMergesAndConflicts(t, newStore(t)) })
	t.Run("DeleteRepositoryCascades", func(t *testing.T) { testDeleteRepositoryCascades(t, newStore(t)) })
	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) { testReturnedRecordsAreCopies(t, newStore(t)) })
}

var epoch = time.UnixMilli(1_700_000_000_000).UTC()

// Repo builds a repository record
func Repo(id, item string) *store.Repository {
	return &store.Repository{ID: id, ContentItemID: item, DefaultBranch: "main", CreatedAt: epoch}
}

// Version builds a version record whose hash is derived from its payload
func Version(repoID, id string, ordinal int64, p payload.Payload, parents ...string) *store.Version {
	v := &store.Version{
		ID:           id,
		RepositoryID: repoID,
		Hash:         contenthash.Of(p),
		Ordinal:      ordinal,
		Payload:      p,
		Message:      "msg " + id,
		Author:       "tester",
		CreatedAt:    epoch.Add(time.Duration(ordinal) * time.Second),
		Branch:       "main",
	}
	if len(parents) > 0 {
		v.Parent = parents[0]
	}
	if len(parents) > 1 {
		v.MergeParent = parents[1]
	}
	return v
}

// Branch builds a branch record
func Branch(repoID, name, head string) *store.Branch {
	return &store.Branch{RepositoryID: repoID, Name: name, Head: head, Base: head, CreatedAt: epoch, UpdatedAt: epoch}
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	b := store.NewBatch().
		CreateRepository(Repo("r1", "item-1")).
		InsertVersion(Version("r1", "v1", 1, payload.Payload{"title": payload.String("a")})).
		CreateBranch(Branch("r1", "main", "v1"))
	require.NoError(t, s.Apply(context.Background(), b))
}

func testRepositoryRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	r, err := s.GetRepository(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", r.ContentItemID)
	assert.Equal(t, "main", r.DefaultBranch)
	assert.True(t, r.CreatedAt.Equal(epoch))

	r, err = s.GetRepositoryByContentItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)

	_, err = s.GetRepository(ctx, "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.GetRepositoryByContentItem(ctx, "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testDuplicateContentItem(t *testing.T, s store.Store) {
	seed(t, s)
	err := s.Apply(context.Background(), store.NewBatch().CreateRepository(Repo("r2", "item-1")))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists), "got %v", err)
}

func testVersionRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	p := payload.Payload{
		"title": payload.String("b"),
		"seo":   payload.Map(payload.Payload{"slug": payload.String("b")}),
		"tags":  payload.List(payload.String("x"), payload.Number(2)),
	}
	v2 := Version("r1", "v2", 2, p, "v1")
	v3 := Version("r1", "v3", 3, p, "v2", "v1")
	require.NoError(t, s.Apply(ctx, store.NewBatch().InsertVersion(v2).InsertVersion(v3)))

	got, err := s.GetVersion(ctx, "r1", "v3")
	require.NoError(t, err)
	assert.Equal(t, v3.Hash, got.Hash)
	assert.Equal(t, int64(3), got.Ordinal)
	assert.True(t, got.Payload.Equal(p))
	assert.Equal(t, "v2", got.Parent)
	assert.Equal(t, "v1", got.MergeParent)
	assert.True(t, got.IsMerge())
	assert.Equal(t, "main", got.Branch)
	assert.True(t, got.CreatedAt.Equal(v3.CreatedAt))

	all, err := s.ListVersions(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	ids := []string{all[0].ID, all[1].ID, all[2].ID}
	assert.ElementsMatch(t, []string{"v1", "v2", "v3"}, ids)

	_, err = s.GetVersion(ctx, "other", "v1")
	assert.True(t, errors.Is(err, store.ErrNotFound), "versions are scoped to their repository")

	err = s.Apply(ctx, store.NewBatch().InsertVersion(Version("r1", "v2", 2, p, "v1")))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists), "got %v", err)
}

func testVersionNeedsKnownParents(t *testing.T, s store.Store) {
	seed(t, s)
	err := s.Apply(context.Background(), store.NewBatch().
		InsertVersion(Version("r1", "v9", 9, payload.Payload{}, "ghost")))
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testBatchIsAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	b := store.NewBatch().
		InsertVersion(Version("r1", "v2", 2, payload.Payload{"title": payload.String("b")}, "v1")).
		CreateBranch(Branch("r1", "main", "v2"))
	err := s.Apply(ctx, b)
	require.Error(t, err)

	_, err = s.GetVersion(ctx, "r1", "v2")
	assert.True(t, errors.Is(err, store.ErrNotFound), "failed batch must leave no version behind")
}

func testBranchLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.Apply(ctx, store.NewBatch().
		InsertVersion(Version("r1", "v2", 2, payload.Payload{"title": payload.String("b")}, "v1")).
		CreateBranch(Branch("r1", "feature", "v1"))))

	br, err := s.GetBranch(ctx, "r1", "feature")
	require.NoError(t, err)
	assert.Equal(t, "v1", br.Head)

	later := epoch.Add(time.Hour)
	moved := &store.Branch{RepositoryID: "r1", Name: "feature", Head: "v2", UpdatedAt: later}
	require.NoError(t, s.Apply(ctx, store.NewBatch().MoveBranch(moved, "v1")))

	br, err = s.GetBranch(ctx, "r1", "feature")
	require.NoError(t, err)
	assert.Equal(t, "v2", br.Head)
	assert.Equal(t, "v1", br.Base, "moving a branch keeps its base")
	assert.True(t, br.CreatedAt.Equal(epoch), "moving a branch keeps its creation time")
	assert.True(t, br.UpdatedAt.Equal(later))

	list, err := s.ListBranches(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "feature", list[0].Name)
	assert.Equal(t, "main", list[1].Name)

	err = s.Apply(ctx, store.NewBatch().CreateBranch(Branch("r1", "feature", "v1")))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists), "got %v", err)

	require.NoError(t, s.Apply(ctx, store.NewBatch().DeleteBranch("r1", "feature")))
	_, err = s.GetBranch(ctx, "r1", "feature")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = s.Apply(ctx, store.NewBatch().DeleteBranch("r1", "feature"))
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// Versions outlive their branch.
	_, err = s.GetVersion(ctx, "r1", "v2")
	assert.NoError(t, err)
}

func testGuardedMove(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.Apply(ctx, store.NewBatch().
		InsertVersion(Version("r1", "v2", 2, payload.Payload{"title": payload.String("b")}, "v1"))))

	moved := &store.Branch{RepositoryID: "r1", Name: "main", Head: "v2", UpdatedAt: epoch}
	err := s.Apply(ctx, store.NewBatch().MoveBranch(moved, "v0"))
	assert.True(t, errors.Is(err, store.ErrHeadMoved), "got %v", err)

	br, err := s.GetBranch(ctx, "r1", "main")
	require.NoError(t, err)
	assert.Equal(t, "v1", br.Head)

	missing := &store.Branch{RepositoryID: "r1", Name: "main", Head: "ghost", UpdatedAt: epoch}
	err = s.Apply(ctx, store.NewBatch().MoveBranch(missing, "v1"))
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testMergesAndConflicts(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	m := &store.MergeAttempt{
		ID:           "m1",
		RepositoryID: "r1",
		Source:       "feature",
		Target:       "main",
		SourceHead:   "v1",
		TargetHead:   "v1",
		Base:         "v1",
		Strategy:     store.StrategyThreeWay,
		State:        store.MergeConflicted,
		Merged:       payload.Payload{"title": payload.String("a")},
		Message:      "merge",
		Author:       "tester",
		CreatedAt:    epoch,
	}
	c2 := &store.Conflict{
		ID: "c2", RepositoryID: "r1", MergeID: "m1", Seq: 1, Ours: "v1", Theirs: "v1",
		Path:        payload.Path{"seo", "slug"},
		OursValue:   payload.String("x"),
		TheirsValue: payload.Value{},
		Status:      store.ConflictOpen,
	}
	c1 := &store.Conflict{
		ID: "c1", RepositoryID: "r1", MergeID: "m1", Seq: 0, Ours: "v1", Theirs: "v1",
		Path:        payload.Path{"body"},
		OursValue:   payload.String("ours"),
		TheirsValue: payload.String("theirs"),
		Status:      store.ConflictOpen,
	}
	require.NoError(t, s.Apply(ctx, store.NewBatch().PutMerge(m).PutConflict(c2).PutConflict(c1)))

	got, err := s.GetMerge(ctx, "r1", "m1")
	require.NoError(t, err)
	assert.Equal(t, store.MergeConflicted, got.State)
	assert.Equal(t, store.StrategyThreeWay, got.Strategy)
	assert.True(t, got.Merged.Equal(m.Merged))
	assert.True(t, got.CompletedAt.IsZero())

	list, err := s.ListConflicts(ctx, "r1", "m1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, "c2", list[1].ID)
	assert.Equal(t, payload.Path{"seo", "slug"}, list[1].Path)
	assert.True(t, list[1].TheirsValue.IsZero(), "an absent side stays absent")

	resolved := c1.Clone()
	resolved.Status = store.ConflictResolved
	resolved.Resolved = payload.String("final")
	resolved.Resolver = "editor"
	resolved.ResolvedAt = epoch.Add(time.Minute)
	done := m.Clone()
	done.State = store.MergeCompleted
	done.Result = "v1"
	done.CompletedAt = epoch.Add(2 * time.Minute)
	require.NoError(t, s.Apply(ctx, store.NewBatch().PutConflict(resolved).PutMerge(done)))

	c, err := s.GetConflict(ctx, "r1", "c1")
	require.NoError(t, err)
	assert.Equal(t, store.ConflictResolved, c.Status)
	assert.True(t, c.Resolved.Equal(payload.String("final")))
	assert.Equal(t, "editor", c.Resolver)
	assert.True(t, c.ResolvedAt.Equal(resolved.ResolvedAt))

	list, err = s.ListConflicts(ctx, "r1", "m1")
	require.NoError(t, err)
	assert.Len(t, list, 2, "replacing a conflict must not duplicate it")

	got, err = s.GetMerge(ctx, "r1", "m1")
	require.NoError(t, err)
	assert.Equal(t, store.MergeCompleted, got.State)
	assert.Equal(t, "v1", got.Result)

	_, err = s.GetConflict(ctx, "r1", "ghost")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.GetMerge(ctx, "r1", "ghost")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testDeleteRepositoryCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.Apply(ctx, store.NewBatch().
		PutMerge(&store.MergeAttempt{ID: "m1", RepositoryID: "r1", Strategy: store.StrategySquash, State: store.MergeStarted, CreatedAt: epoch}).
		PutConflict(&store.Conflict{ID: "c1", RepositoryID: "r1", MergeID: "m1", Path: payload.Path{"a"}, Status: store.ConflictOpen})))

	require.NoError(t, s.DeleteRepository(ctx, "r1"))

	_, err := s.GetRepository(ctx, "r1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.GetVersion(ctx, "r1", "v1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.GetBranch(ctx, "r1", "main")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.GetConflict(ctx, "r1", "c1")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = s.DeleteRepository(ctx, "r1")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// The content item can be versioned again.
	require.NoError(t, s.Apply(ctx, store.NewBatch().CreateRepository(Repo("r2", "item-1"))))
}

func testReturnedRecordsAreCopies(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	v, err := s.GetVersion(ctx, "r1", "v1")
	require.NoError(t, err)
	v.Payload["title"] = payload.String("mutated")

	again, err := s.GetVersion(ctx, "r1", "v1")
	require.NoError(t, err)
	assert.True(t, again.Payload["title"].Equal(payload.String("a")))
}
