package vcs

import (
	"context"
	"fmt"
	"time"

	"github.com/nainya/contentvc/pkg/contenthash"
	"github.com/nainya/contentvc/pkg/store"
)

// ProblemKind classifies an integrity problem
type ProblemKind string

const (
	ProblemHashMismatch  ProblemKind = "hash_mismatch"
	ProblemMissingParent ProblemKind = "missing_parent"
	ProblemOrdinal       ProblemKind = "ordinal_order"
	ProblemMissingHead   ProblemKind = "missing_head"
	ProblemRootCount     ProblemKind = "root_count"
)

// Problem is one integrity violation
type Problem struct {
	Kind      ProblemKind
	VersionID string
	Branch    string
	Detail    string
}

func (p Problem) String() string {
	switch {
	case p.Branch != "":
		return fmt.Sprintf("%s: branch %s: %s", p.Kind, p.Branch, p.Detail)
	case p.VersionID != "":
		return fmt.Sprintf("%s: version %s: %s", p.Kind, p.VersionID, p.Detail)
	}
	return fmt.Sprintf("%s: %s", p.Kind, p.Detail)
}

// VerifyReport summarises a Verify run
type VerifyReport struct {
	RepositoryID string
	Versions     int
	Branches     int
	Problems     []Problem
}

// OK reports whether no problem was found
func (v *VerifyReport) OK() bool {
	return len(v.Problems) == 0
}

// Verify recomputes every content hash and checks the graph: parents exist,
// ordinals strictly decrease along parent edges, exactly one root exists and
// every branch head is a stored version
func (r *Repo) Verify(ctx context.Context) (rep *VerifyReport, err error) {
	start := time.Now()
	defer func() { r.observe("verify", start, err) }()

	versions, err := r.e.store.ListVersions(ctx, r.repo.ID)
	if err != nil {
		return nil, translate(err)
	}
	branches, err := r.e.store.ListBranches(ctx, r.repo.ID)
	if err != nil {
		return nil, translate(err)
	}

	rep = &VerifyReport{RepositoryID: r.repo.ID, Versions: len(versions), Branches: len(branches)}
	byID := make(map[string]*store.Version, len(versions))
	for _, v := range versions {
		byID[v.ID] = v
	}

	roots := 0
	for _, v := range versions {
		if v.IsRoot() {
			roots++
		}
		var hashes []contenthash.Hash
		intact := true
		for _, pid := range v.Parents() {
			p, ok := byID[pid]
			if !ok {
				rep.Problems = append(rep.Problems, Problem{
					Kind: ProblemMissingParent, VersionID: v.ID, Detail: "parent " + pid + " not stored",
				})
				intact = false
				continue
			}
			if p.Ordinal >= v.Ordinal {
				rep.Problems = append(rep.Problems, Problem{
					Kind:      ProblemOrdinal,
					VersionID: v.ID,
					Detail:    fmt.Sprintf("ordinal %d not above parent %s ordinal %d", v.Ordinal, p.ID, p.Ordinal),
				})
			}
			hashes = append(hashes, p.Hash)
		}
		if !intact {
			continue
		}
		if got := contenthash.Of(v.Payload, hashes...); got != v.Hash {
			rep.Problems = append(rep.Problems, Problem{
				Kind:      ProblemHashMismatch,
				VersionID: v.ID,
				Detail:    fmt.Sprintf("stored %s, computed %s", v.Hash.Short(), got.Short()),
			})
		}
	}
	if len(versions) > 0 && roots != 1 {
		rep.Problems = append(rep.Problems, Problem{
			Kind: ProblemRootCount, Detail: fmt.Sprintf("%d root versions", roots),
		})
	}

	for _, br := range branches {
		if _, ok := byID[br.Head]; !ok {
			rep.Problems = append(rep.Problems, Problem{
				Kind: ProblemMissingHead, Branch: br.Name, Detail: "head " + br.Head + " not stored",
			})
		}
	}
	return rep, nil
}
