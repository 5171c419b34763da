package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
	"github.com/nainya/contentvc/pkg/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestApplyHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Apply(ctx, store.NewBatch().CreateRepository(storetest.Repo("r1", "item-1")))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = s.GetRepository(context.Background(), "r1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestConcurrentGuardedMovesLetOneWin(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Apply(ctx, store.NewBatch().
		CreateRepository(storetest.Repo("r1", "item-1")).
		InsertVersion(storetest.Version("r1", "v1", 1, payload.Payload{})).
		CreateBranch(storetest.Branch("r1", "main", "v1"))))

	const writers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("w%d", i)
			b := store.NewBatch().
				InsertVersion(storetest.Version("r1", id, 2, payload.Payload{"n": payload.Number(float64(i))}, "v1")).
				MoveBranch(&store.Branch{RepositoryID: "r1", Name: "main", Head: id}, "v1")
			if err := s.Apply(ctx, b); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, store.ErrHeadMoved), "got %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	versions, err := s.ListVersions(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, versions, 2, "losing batches must not leave versions behind")
}
