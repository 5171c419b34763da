package vcs

import (
	"errors"
	"fmt"

	"github.com/nainya/contentvc/pkg/store"
)

var (
	// ErrValidation indicates malformed input
	ErrValidation = errors.New("vcs: validation failed")

	// ErrNoOpCommit indicates a commit that changes nothing
	ErrNoOpCommit = errors.New("vcs: no changes to commit")

	// ErrNotFound indicates an unknown repository, version, branch, merge or conflict
	ErrNotFound = errors.New("vcs: not found")

	// ErrDuplicateBranch indicates a branch name already in use
	ErrDuplicateBranch = errors.New("vcs: branch already exists")

	// ErrProtectedBranch indicates an attempt to delete the default branch
	ErrProtectedBranch = errors.New("vcs: branch is protected")

	// ErrAlreadyResolved indicates a second resolution of one conflict
	ErrAlreadyResolved = errors.New("vcs: conflict already resolved")

	// ErrUnresolvedConflicts indicates a merge completion with open conflicts
	ErrUnresolvedConflicts = errors.New("vcs: merge has unresolved conflicts")

	// ErrCyclicAncestry indicates a parent edge that does not lead strictly back in history
	ErrCyclicAncestry = errors.New("vcs: cyclic ancestry")

	// ErrStaleMerge indicates the target branch moved after the merge started
	ErrStaleMerge = errors.New("vcs: target branch moved since merge started")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate maps store sentinels onto vcs sentinels, keeping the original in the chain
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
