// ABOUTME: Persistence contract for repositories, versions, branches and merges
// ABOUTME: Writes go through Batch so a mutation lands fully or not at all

package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates a missing record
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists indicates a uniqueness violation
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrHeadMoved indicates a guarded branch move found a different head
	ErrHeadMoved = errors.New("store: branch head moved")
)

// Reader is the read side of a Store. Reads never block on writers for longer
// than a single record copy.
type Reader interface {
	GetRepository(ctx context.Context, id string) (*Repository, error)
	GetRepositoryByContentItem(ctx context.Context, contentItemID string) (*Repository, error)

	GetVersion(ctx context.Context, repositoryID, id string) (*Version, error)
	ListVersions(ctx context.Context, repositoryID string) ([]*Version, error)

	GetBranch(ctx context.Context, repositoryID, name string) (*Branch, error)
	ListBranches(ctx context.Context, repositoryID string) ([]*Branch, error)

	GetMerge(ctx context.Context, repositoryID, id string) (*MergeAttempt, error)
	GetConflict(ctx context.Context, repositoryID, id string) (*Conflict, error)
	ListConflicts(ctx context.Context, repositoryID, mergeID string) ([]*Conflict, error)
}

// Store persists the engine's tables
type Store interface {
	Reader

	// Apply writes every operation in b atomically
	Apply(ctx context.Context, b *Batch) error

	// DeleteRepository removes a repository and everything it owns
	DeleteRepository(ctx context.Context, id string) error

	Close() error
}

// OpKind enumerates batch operations
type OpKind uint8

const (
	OpCreateRepository OpKind = iota + 1
	OpInsertVersion
	OpCreateBranch
	OpUpdateBranch
	OpDeleteBranch
	OpPutMerge
	OpPutConflict
)

// Op is one write inside a Batch
type Op struct {
	Kind       OpKind
	Repository *Repository
	Version    *Version
	Branch     *Branch
	Merge      *MergeAttempt
	Conflict   *Conflict

	// ExpectHead guards OpUpdateBranch: the stored head must still equal it
	ExpectHead string
}

// Batch collects writes to apply in one atomic step.
// Versions and other immutable records should be queued before the branch move.
type Batch struct {
	Ops []Op
}

// NewBatch returns an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// CreateRepository queues a repository insert
func (b *Batch) CreateRepository(r *Repository) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpCreateRepository, Repository: r})
	return b
}

// InsertVersion queues an immutable version insert
func (b *Batch) InsertVersion(v *Version) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpInsertVersion, Version: v})
	return b
}

// CreateBranch queues a branch insert
func (b *Batch) CreateBranch(br *Branch) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpCreateBranch, Branch: br})
	return b
}

// MoveBranch queues a head move guarded by the expected current head
func (b *Batch) MoveBranch(br *Branch, expectHead string) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpUpdateBranch, Branch: br, ExpectHead: expectHead})
	return b
}

// DeleteBranch queues a branch removal
func (b *Batch) DeleteBranch(repositoryID, name string) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpDeleteBranch, Branch: &Branch{RepositoryID: repositoryID, Name: name}})
	return b
}

// PutMerge queues an insert-or-replace of a merge attempt
func (b *Batch) PutMerge(m *MergeAttempt) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpPutMerge, Merge: m})
	return b
}

// PutConflict queues an insert-or-replace of a conflict
func (b *Batch) PutConflict(c *Conflict) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpPutConflict, Conflict: c})
	return b
}

// Len returns the number of queued operations
func (b *Batch) Len() int {
	return len(b.Ops)
}
