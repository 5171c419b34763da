package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/store"
)

// MaxBranchNameLen bounds branch names in bytes
const MaxBranchNameLen = 255

// ValidateBranchName rejects names that are empty, too long, start with '-',
// contain ".." or contain whitespace
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return validationf("branch name is empty")
	case len(name) > MaxBranchNameLen:
		return validationf("branch name longer than %d bytes", MaxBranchNameLen)
	case strings.HasPrefix(name, "-"):
		return validationf("branch name %q starts with '-'", name)
	case strings.Contains(name, ".."):
		return validationf("branch name %q contains '..'", name)
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return validationf("branch name %q contains whitespace", name)
	}
	return nil
}

// CreateBranch forks name from the current head of base
func (r *Repo) CreateBranch(ctx context.Context, name, base string) (br *store.Branch, err error) {
	start := time.Now()
	defer func() { r.observe("branch_create", start, err) }()

	if err := ValidateBranchName(name); err != nil {
		return nil, err
	}
	unlock := r.lock()
	defer unlock()

	from, err := r.e.store.GetBranch(ctx, r.repo.ID, base)
	if err != nil {
		return nil, fmt.Errorf("base branch: %w", translate(err))
	}
	if _, err := r.e.store.GetBranch(ctx, r.repo.ID, name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBranch, name)
	}

	now := r.e.now()
	br = &store.Branch{
		RepositoryID: r.repo.ID,
		Name:         name,
		Head:         from.Head,
		Base:         base,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = r.e.store.Apply(ctx, store.NewBatch().CreateBranch(br))
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBranch, name)
	}
	if err != nil {
		return nil, translate(err)
	}
	r.emit(ctx, audit.OpBranchCreate, br.Head, name, "")
	out := *br
	return &out, nil
}

// Checkout makes name the handle's current branch
func (r *Repo) Checkout(ctx context.Context, name string) (*store.Branch, error) {
	br, err := r.GetBranch(ctx, name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
	return br, nil
}

// CurrentBranch returns the handle's checked-out branch
func (r *Repo) CurrentBranch() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// GetBranch returns one branch
func (r *Repo) GetBranch(ctx context.Context, name string) (*store.Branch, error) {
	br, err := r.e.store.GetBranch(ctx, r.repo.ID, name)
	if err != nil {
		return nil, translate(err)
	}
	return br, nil
}

// ListBranches returns all branches sorted by name
func (r *Repo) ListBranches(ctx context.Context) ([]*store.Branch, error) {
	list, err := r.e.store.ListBranches(ctx, r.repo.ID)
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

// DeleteBranch removes a branch pointer. Its versions stay in the graph.
// A handle that had the branch checked out falls back to the default branch.
func (r *Repo) DeleteBranch(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { r.observe("branch_delete", start, err) }()

	if name == r.repo.DefaultBranch {
		return fmt.Errorf("%w: %s", ErrProtectedBranch, name)
	}
	unlock := r.lock()
	defer unlock()

	br, err := r.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	if err := r.apply(ctx, store.NewBatch().DeleteBranch(r.repo.ID, name)); err != nil {
		return err
	}

	r.mu.Lock()
	if r.current == name {
		r.current = r.repo.DefaultBranch
	}
	r.mu.Unlock()

	r.emit(ctx, audit.OpBranchDelete, br.Head, name, "")
	return nil
}
