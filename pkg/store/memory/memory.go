// ABOUTME: In-memory store: an arena of versions addressed by id
// ABOUTME: Batches are validated in full before any table is touched

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nainya/contentvc/pkg/store"
)

// Store keeps every table in process memory
type Store struct {
	mu sync.RWMutex

	repos     map[string]*store.Repository
	byItem    map[string]string         // content item id -> repository id
	versions  map[string]*store.Version // arena, keyed by version id
	repoVers  map[string][]string       // repository id -> version ids in insertion order
	branches  map[string]map[string]*store.Branch
	merges    map[string]*store.MergeAttempt
	conflicts map[string]*store.Conflict
	mergeCfl  map[string][]string // merge id -> conflict ids
}

var _ store.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		repos:     make(map[string]*store.Repository),
		byItem:    make(map[string]string),
		versions:  make(map[string]*store.Version),
		repoVers:  make(map[string][]string),
		branches:  make(map[string]map[string]*store.Branch),
		merges:    make(map[string]*store.MergeAttempt),
		conflicts: make(map[string]*store.Conflict),
		mergeCfl:  make(map[string][]string),
	}
}

// GetRepository returns a repository by id
func (s *Store) GetRepository(ctx context.Context, id string) (*store.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.repos[id]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", id, store.ErrNotFound)
	}
	out := *r
	return &out, nil
}

// GetRepositoryByContentItem returns the repository of a content item
func (s *Store) GetRepositoryByContentItem(ctx context.Context, contentItemID string) (*store.Repository, error) {
	s.mu.RLock()
	id, ok := s.byItem[contentItemID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("repository for content item %s: %w", contentItemID, store.ErrNotFound)
	}
	return s.GetRepository(ctx, id)
}

// GetVersion returns a version of a repository
func (s *Store) GetVersion(ctx context.Context, repositoryID, id string) (*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok || v.RepositoryID != repositoryID {
		return nil, fmt.Errorf("version %s: %w", id, store.ErrNotFound)
	}
	return v.Clone(), nil
}

// ListVersions returns every version of a repository in insertion order
func (s *Store) ListVersions(ctx context.Context, repositoryID string) ([]*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.repoVers[repositoryID]
	out := make([]*store.Version, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.versions[id].Clone())
	}
	return out, nil
}

// GetBranch returns a branch by name
func (s *Store) GetBranch(ctx context.Context, repositoryID, name string) (*store.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.branches[repositoryID][name]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", name, store.ErrNotFound)
	}
	out := *b
	return &out, nil
}

// ListBranches returns the branches of a repository sorted by name
func (s *Store) ListBranches(ctx context.Context, repositoryID string) ([]*store.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Branch, 0, len(s.branches[repositoryID]))
	for _, b := range s.branches[repositoryID] {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetMerge returns a merge attempt
func (s *Store) GetMerge(ctx context.Context, repositoryID, id string) (*store.MergeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.merges[id]
	if !ok || m.RepositoryID != repositoryID {
		return nil, fmt.Errorf("merge %s: %w", id, store.ErrNotFound)
	}
	return m.Clone(), nil
}

// GetConflict returns a conflict
func (s *Store) GetConflict(ctx context.Context, repositoryID, id string) (*store.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conflicts[id]
	if !ok || c.RepositoryID != repositoryID {
		return nil, fmt.Errorf("conflict %s: %w", id, store.ErrNotFound)
	}
	return c.Clone(), nil
}

// ListConflicts returns the conflicts of a merge attempt ordered by Seq
func (s *Store) ListConflicts(ctx context.Context, repositoryID, mergeID string) ([]*store.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Conflict
	for _, id := range s.mergeCfl[mergeID] {
		c := s.conflicts[id]
		if c.RepositoryID == repositoryID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Apply validates and then writes a batch under one critical section
func (s *Store) Apply(ctx context.Context, b *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(b); err != nil {
		return err
	}
	for _, op := range b.Ops {
		s.apply(op)
	}
	return nil
}

// check runs every precondition against the tables plus earlier ops of the batch
func (s *Store) check(b *store.Batch) error {
	pendingRepos := make(map[string]bool)
	pendingItems := make(map[string]bool)
	pendingVers := make(map[string]string) // id -> repository id
	heads := make(map[string]*string)      // repo/name -> head (nil = deleted)

	repoExists := func(id string) bool {
		_, ok := s.repos[id]
		return ok || pendingRepos[id]
	}
	versionIn := func(repoID, id string) bool {
		if r, ok := pendingVers[id]; ok {
			return r == repoID
		}
		v, ok := s.versions[id]
		return ok && v.RepositoryID == repoID
	}
	headOf := func(repoID, name string) (string, bool) {
		if h, ok := heads[repoID+"/"+name]; ok {
			if h == nil {
				return "", false
			}
			return *h, true
		}
		br, ok := s.branches[repoID][name]
		if !ok {
			return "", false
		}
		return br.Head, true
	}

	for _, op := range b.Ops {
		switch op.Kind {
		case store.OpCreateRepository:
			r := op.Repository
			if repoExists(r.ID) {
				return fmt.Errorf("repository %s: %w", r.ID, store.ErrAlreadyExists)
			}
			if _, ok := s.byItem[r.ContentItemID]; ok || pendingItems[r.ContentItemID] {
				return fmt.Errorf("repository for content item %s: %w", r.ContentItemID, store.ErrAlreadyExists)
			}
			pendingRepos[r.ID] = true
			pendingItems[r.ContentItemID] = true

		case store.OpInsertVersion:
			v := op.Version
			if !repoExists(v.RepositoryID) {
				return fmt.Errorf("repository %s: %w", v.RepositoryID, store.ErrNotFound)
			}
			if _, ok := s.versions[v.ID]; ok {
				return fmt.Errorf("version %s: %w", v.ID, store.ErrAlreadyExists)
			}
			if _, ok := pendingVers[v.ID]; ok {
				return fmt.Errorf("version %s: %w", v.ID, store.ErrAlreadyExists)
			}
			for _, p := range v.Parents() {
				if !versionIn(v.RepositoryID, p) {
					return fmt.Errorf("parent %s of version %s: %w", p, v.ID, store.ErrNotFound)
				}
			}
			pendingVers[v.ID] = v.RepositoryID

		case store.OpCreateBranch:
			br := op.Branch
			if !repoExists(br.RepositoryID) {
				return fmt.Errorf("repository %s: %w", br.RepositoryID, store.ErrNotFound)
			}
			if _, ok := headOf(br.RepositoryID, br.Name); ok {
				return fmt.Errorf("branch %s: %w", br.Name, store.ErrAlreadyExists)
			}
			if !versionIn(br.RepositoryID, br.Head) {
				return fmt.Errorf("head %s of branch %s: %w", br.Head, br.Name, store.ErrNotFound)
			}
			head := br.Head
			heads[br.RepositoryID+"/"+br.Name] = &head

		case store.OpUpdateBranch:
			br := op.Branch
			cur, ok := headOf(br.RepositoryID, br.Name)
			if !ok {
				return fmt.Errorf("branch %s: %w", br.Name, store.ErrNotFound)
			}
			if op.ExpectHead != "" && cur != op.ExpectHead {
				return fmt.Errorf("branch %s: %w", br.Name, store.ErrHeadMoved)
			}
			if !versionIn(br.RepositoryID, br.Head) {
				return fmt.Errorf("head %s of branch %s: %w", br.Head, br.Name, store.ErrNotFound)
			}
			head := br.Head
			heads[br.RepositoryID+"/"+br.Name] = &head

		case store.OpDeleteBranch:
			br := op.Branch
			if _, ok := headOf(br.RepositoryID, br.Name); !ok {
				return fmt.Errorf("branch %s: %w", br.Name, store.ErrNotFound)
			}
			heads[br.RepositoryID+"/"+br.Name] = nil

		case store.OpPutMerge:
			if !repoExists(op.Merge.RepositoryID) {
				return fmt.Errorf("repository %s: %w", op.Merge.RepositoryID, store.ErrNotFound)
			}

		case store.OpPutConflict:
			if !repoExists(op.Conflict.RepositoryID) {
				return fmt.Errorf("repository %s: %w", op.Conflict.RepositoryID, store.ErrNotFound)
			}

		default:
			return fmt.Errorf("unknown batch op %d", op.Kind)
		}
	}
	return nil
}

func (s *Store) apply(op store.Op) {
	switch op.Kind {
	case store.OpCreateRepository:
		r := *op.Repository
		s.repos[r.ID] = &r
		s.byItem[r.ContentItemID] = r.ID
		s.branches[r.ID] = make(map[string]*store.Branch)

	case store.OpInsertVersion:
		v := op.Version.Clone()
		s.versions[v.ID] = v
		s.repoVers[v.RepositoryID] = append(s.repoVers[v.RepositoryID], v.ID)

	case store.OpCreateBranch, store.OpUpdateBranch:
		br := *op.Branch
		if s.branches[br.RepositoryID] == nil {
			s.branches[br.RepositoryID] = make(map[string]*store.Branch)
		}
		if old, ok := s.branches[br.RepositoryID][br.Name]; ok && op.Kind == store.OpUpdateBranch {
			br.CreatedAt = old.CreatedAt
			br.Base = old.Base
		}
		s.branches[br.RepositoryID][br.Name] = &br

	case store.OpDeleteBranch:
		delete(s.branches[op.Branch.RepositoryID], op.Branch.Name)

	case store.OpPutMerge:
		s.merges[op.Merge.ID] = op.Merge.Clone()

	case store.OpPutConflict:
		c := op.Conflict.Clone()
		if _, exists := s.conflicts[c.ID]; !exists {
			s.mergeCfl[c.MergeID] = append(s.mergeCfl[c.MergeID], c.ID)
		}
		s.conflicts[c.ID] = c
	}
}

// DeleteRepository drops a repository with all of its versions, branches, merges and conflicts
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.repos[id]
	if !ok {
		return fmt.Errorf("repository %s: %w", id, store.ErrNotFound)
	}
	for _, vid := range s.repoVers[id] {
		delete(s.versions, vid)
	}
	for mid, m := range s.merges {
		if m.RepositoryID != id {
			continue
		}
		for _, cid := range s.mergeCfl[mid] {
			delete(s.conflicts, cid)
		}
		delete(s.mergeCfl, mid)
		delete(s.merges, mid)
	}
	delete(s.repoVers, id)
	delete(s.branches, id)
	delete(s.byItem, r.ContentItemID)
	delete(s.repos, id)
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
