package vcs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/payload"
)

func TestConcurrentCommitsSerialisePerRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.root(t, map[string]any{"n": 0})

	const writers = 20
	payloads := make([]payload.Payload, writers+1)
	for i := 1; i <= writers; i++ {
		payloads[i] = doc(t, map[string]any{"n": i})
	}
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every handle shares the repository lock
			repo, err := f.eng.Open(ctx, "item-1")
			if err != nil {
				errs <- err
				return
			}
			_, err = repo.Commit(ctx, "main", payloads[i], fmt.Sprintf("writer %d", i), "author-1")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hist, err := f.repo.History(ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, hist, writers+1)
	for i, v := range hist {
		assert.Equal(t, int64(writers+1-i), v.Ordinal)
	}

	rep, err := f.repo.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "problems: %v", rep.Problems)
}

func TestConcurrentRepositoriesAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	roots := make([]payload.Payload, 8)
	nexts := make([]payload.Payload, 8)
	for i := range roots {
		roots[i] = doc(t, map[string]any{"i": i})
		nexts[i] = doc(t, map[string]any{"i": i + 100})
	}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo, err := f.eng.Open(ctx, fmt.Sprintf("item-c%d", i))
			if err != nil {
				errs <- err
				return
			}
			if _, err := repo.CreateRootVersion(ctx, roots[i], "initial", "author-1"); err != nil {
				errs <- err
				return
			}
			_, err = repo.Commit(ctx, "main", nexts[i], "second", "author-1")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
