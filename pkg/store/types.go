// ABOUTME: Persisted records of the version-control engine
// ABOUTME: Repository, Version, Branch, MergeAttempt and Conflict tables

package store

import (
	"time"

	"github.com/nainya/contentvc/pkg/contenthash"
	"github.com/nainya/contentvc/pkg/payload"
)

// Repository is the version-control scope of one content item
type Repository struct {
	ID            string
	ContentItemID string
	DefaultBranch string
	CreatedAt     time.Time
}

// Version is an immutable snapshot of a content item's payload
type Version struct {
	ID           string
	RepositoryID string
	Hash         contenthash.Hash
	Ordinal      int64
	Payload      payload.Payload
	Message      string
	Author       string
	CreatedAt    time.Time
	Parent       string // empty for root versions
	MergeParent  string // set on two-parent merge versions only
	Branch       string // branch the version was committed on
}

// Parents returns the non-empty parent ids, first parent first
func (v *Version) Parents() []string {
	var out []string
	if v.Parent != "" {
		out = append(out, v.Parent)
	}
	if v.MergeParent != "" {
		out = append(out, v.MergeParent)
	}
	return out
}

// IsRoot reports whether v has no parent
func (v *Version) IsRoot() bool {
	return v.Parent == ""
}

// IsMerge reports whether v has two parents
func (v *Version) IsMerge() bool {
	return v.MergeParent != ""
}

// Clone returns a deep copy of v
func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	out := *v
	out.Payload = v.Payload.Clone()
	return &out
}

// Branch is a named pointer to a head version
type Branch struct {
	RepositoryID string
	Name         string
	Head         string
	Base         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MergeStrategy selects how a merge combines histories
type MergeStrategy string

const (
	StrategyFastForward MergeStrategy = "fast-forward"
	StrategyThreeWay    MergeStrategy = "three-way"
	StrategySquash      MergeStrategy = "squash"
)

// MergeState is the lifecycle state of a merge attempt
type MergeState string

const (
	MergeStarted     MergeState = "started"
	MergeFastForward MergeState = "fast-forward"
	MergeClean       MergeState = "clean"
	MergeConflicted  MergeState = "conflicted"
	MergeCompleted   MergeState = "completed"
	MergeAborted     MergeState = "aborted"
)

// MergeAttempt records one merge of Source into Target
type MergeAttempt struct {
	ID           string
	RepositoryID string
	Source       string
	Target       string
	SourceHead   string
	TargetHead   string
	Base         string
	Strategy     MergeStrategy
	State        MergeState
	Merged       payload.Payload // non-conflicting union, applied to the base
	Result       string          // resulting head version id once completed
	Message      string
	Author       string
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// Clone returns a deep copy of m
func (m *MergeAttempt) Clone() *MergeAttempt {
	if m == nil {
		return nil
	}
	out := *m
	out.Merged = m.Merged.Clone()
	return &out
}

// ConflictStatus is the resolution state of a conflict
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// Conflict is one field-level disagreement found by a merge attempt
type Conflict struct {
	ID           string
	RepositoryID string
	MergeID      string
	Seq          int // position within the attempt, in path order
	Ours         string
	Theirs       string
	Path         payload.Path
	OursValue    payload.Value
	TheirsValue  payload.Value
	Status       ConflictStatus
	Resolved     payload.Value
	Resolver     string
	ResolvedAt   time.Time
}

// Clone returns a deep copy of c
func (c *Conflict) Clone() *Conflict {
	if c == nil {
		return nil
	}
	out := *c
	out.Path = append(payload.Path(nil), c.Path...)
	out.OursValue = c.OursValue.Clone()
	out.TheirsValue = c.TheirsValue.Clone()
	out.Resolved = c.Resolved.Clone()
	return &out
}
