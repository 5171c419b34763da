package vcs

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nainya/contentvc/pkg/audit"
	"github.com/nainya/contentvc/pkg/contenthash"
	"github.com/nainya/contentvc/pkg/diff"
	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
)

func validateCommit(p payload.Payload, message string) error {
	if p.IsEmpty() {
		return validationf("payload is empty")
	}
	if strings.TrimSpace(message) == "" {
		return validationf("commit message is blank")
	}
	return checkFields(p, nil)
}

// checkFields rejects absent values and text that is not valid UTF-8,
// descending into maps and lists
func checkFields(p payload.Payload, prefix payload.Path) error {
	for _, k := range p.Keys() {
		path := prefix.Child(k)
		if !utf8.ValidString(k) {
			return validationf("field %q: key is not valid UTF-8", path.String())
		}
		v := p[k]
		if v.IsZero() {
			return validationf("field %q has no value", path.String())
		}
		if err := checkValue(v, path); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(v payload.Value, path payload.Path) error {
	if s, ok := v.Str(); ok && !utf8.ValidString(s) {
		return validationf("field %q: string is not valid UTF-8", path.String())
	}
	if items, ok := v.Items(); ok {
		for i, item := range items {
			at := path.Child(strconv.Itoa(i))
			if item.IsZero() {
				return validationf("field %q has no value", at.String())
			}
			if err := checkValue(item, at); err != nil {
				return err
			}
		}
	}
	if fields, ok := v.Fields(); ok {
		return checkFields(fields, path)
	}
	return nil
}

// newVersion builds a version on top of parents, first parent first
func (r *Repo) newVersion(p payload.Payload, message, author, branch string, parents ...*store.Version) *store.Version {
	v := &store.Version{
		ID:           r.e.newID(),
		RepositoryID: r.repo.ID,
		Ordinal:      1,
		Payload:      p.Clone(),
		Message:      message,
		Author:       author,
		CreatedAt:    r.e.now(),
		Branch:       branch,
	}
	hashes := make([]contenthash.Hash, 0, len(parents))
	for i, parent := range parents {
		hashes = append(hashes, parent.Hash)
		if parent.Ordinal >= v.Ordinal {
			v.Ordinal = parent.Ordinal + 1
		}
		switch i {
		case 0:
			v.Parent = parent.ID
		case 1:
			v.MergeParent = parent.ID
		}
	}
	v.Hash = contenthash.Of(v.Payload, hashes...)
	return v
}

// CreateRootVersion writes the first version and points the default branch at it
func (r *Repo) CreateRootVersion(ctx context.Context, p payload.Payload, message, author string) (v *store.Version, err error) {
	start := time.Now()
	defer func() { r.observe("create_root", start, err) }()

	if err := validateCommit(p, message); err != nil {
		return nil, err
	}
	unlock := r.lock()
	defer unlock()

	existing, err := r.e.store.ListVersions(ctx, r.repo.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, validationf("repository already has a root version")
	}

	v = r.newVersion(p, message, author, r.repo.DefaultBranch)
	now := r.e.now()
	br := &store.Branch{
		RepositoryID: r.repo.ID,
		Name:         r.repo.DefaultBranch,
		Head:         v.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.apply(ctx, store.NewBatch().InsertVersion(v).CreateBranch(br)); err != nil {
		return nil, err
	}
	r.e.metrics.RecordVersion()
	r.emit(ctx, audit.OpRootCreate, v.ID, br.Name, author)
	return v.Clone(), nil
}

// Commit writes p as the new head of branch
func (r *Repo) Commit(ctx context.Context, branch string, p payload.Payload, message, author string) (v *store.Version, err error) {
	start := time.Now()
	defer func() { r.observe("commit", start, err) }()

	if err := validateCommit(p, message); err != nil {
		return nil, err
	}
	unlock := r.lock()
	defer unlock()

	br, head, err := r.branchHead(ctx, branch)
	if err != nil {
		return nil, err
	}
	if !diff.Compute(head.Payload, p).HasChanges() {
		return nil, ErrNoOpCommit
	}

	v = r.newVersion(p, message, author, branch, head)
	if err := r.advance(ctx, store.NewBatch().InsertVersion(v), br, v.ID); err != nil {
		return nil, err
	}
	r.e.metrics.RecordVersion()
	r.emit(ctx, audit.OpCommit, v.ID, branch, author)
	return v.Clone(), nil
}

// CommitCurrent commits on the handle's checked-out branch
func (r *Repo) CommitCurrent(ctx context.Context, p payload.Payload, message, author string) (*store.Version, error) {
	return r.Commit(ctx, r.CurrentBranch(), p, message, author)
}

// Get returns a version of this repository
func (r *Repo) Get(ctx context.Context, id string) (*store.Version, error) {
	v, err := r.e.store.GetVersion(ctx, r.repo.ID, id)
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

// branchHead loads a branch and its head version
func (r *Repo) branchHead(ctx context.Context, name string) (*store.Branch, *store.Version, error) {
	br, err := r.e.store.GetBranch(ctx, r.repo.ID, name)
	if err != nil {
		return nil, nil, translate(err)
	}
	head, err := r.Get(ctx, br.Head)
	if err != nil {
		return nil, nil, err
	}
	return br, head, nil
}

// advance queues the head move of br onto b and applies the batch.
// The move is guarded by the head br was read with.
func (r *Repo) advance(ctx context.Context, b *store.Batch, br *store.Branch, head string) error {
	moved := *br
	moved.Head = head
	moved.UpdatedAt = r.e.now()
	b.MoveBranch(&moved, br.Head)
	return r.apply(ctx, b)
}
