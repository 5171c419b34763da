// Package sqlite persists the version store in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/nainya/contentvc/pkg/contenthash"
	"github.com/nainya/contentvc/pkg/payload"
	"github.com/nainya/contentvc/pkg/store"
	"github.com/nainya/contentvc/pkg/store/sqlite/migrations"
)

// Store persists repositories, versions, branches and merges in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// optional timestamps are stored as 0 when unset
func toOptionalMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return toMillis(value)
}

func fromOptionalMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return fromMillis(value)
}

// Open opens a SQLite version store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL" +
		"&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetRepository returns one repository by id.
func (s *Store) GetRepository(ctx context.Context, id string) (*store.Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, content_item_id, default_branch, created_at FROM repositories WHERE id = ?`, id)
	r, err := scanRepository(row)
	if err != nil {
		return nil, notFound(err, "repository "+id)
	}
	return r, nil
}

// GetRepositoryByContentItem returns the repository of a content item.
func (s *Store) GetRepositoryByContentItem(ctx context.Context, contentItemID string) (*store.Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, content_item_id, default_branch, created_at FROM repositories WHERE content_item_id = ?`, contentItemID)
	r, err := scanRepository(row)
	if err != nil {
		return nil, notFound(err, "repository for content item "+contentItemID)
	}
	return r, nil
}

func scanRepository(row *sql.Row) (*store.Repository, error) {
	var (
		r         store.Repository
		createdAt int64
	)
	if err := row.Scan(&r.ID, &r.ContentItemID, &r.DefaultBranch, &createdAt); err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}

const versionColumns = `id, repository_id, hash, ordinal, payload, message, author, branch, parent_id, merge_parent_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*store.Version, error) {
	var (
		v         store.Version
		hash      string
		raw       []byte
		createdAt int64
	)
	if err := row.Scan(&v.ID, &v.RepositoryID, &hash, &v.Ordinal, &raw, &v.Message, &v.Author,
		&v.Branch, &v.Parent, &v.MergeParent, &createdAt); err != nil {
		return nil, err
	}
	h, err := contenthash.Parse(hash)
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", v.ID, err)
	}
	p, err := payload.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", v.ID, err)
	}
	v.Hash = h
	v.Payload = p
	v.CreatedAt = fromMillis(createdAt)
	return &v, nil
}

// GetVersion returns one version of a repository.
func (s *Store) GetVersion(ctx context.Context, repositoryID, id string) (*store.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE repository_id = ? AND id = ?`, repositoryID, id)
	v, err := scanVersion(row)
	if err != nil {
		return nil, notFound(err, "version "+id)
	}
	return v, nil
}

// ListVersions returns every version of a repository in insertion order.
func (s *Store) ListVersions(ctx context.Context, repositoryID string) ([]*store.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE repository_id = ? ORDER BY rowid`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []*store.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

const branchColumns = `repository_id, name, head_id, base, created_at, updated_at`

func scanBranch(row rowScanner) (*store.Branch, error) {
	var (
		b                    store.Branch
		createdAt, updatedAt int64
	)
	if err := row.Scan(&b.RepositoryID, &b.Name, &b.Head, &b.Base, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(createdAt)
	b.UpdatedAt = fromMillis(updatedAt)
	return &b, nil
}

// GetBranch returns one branch by name.
func (s *Store) GetBranch(ctx context.Context, repositoryID, name string) (*store.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE repository_id = ? AND name = ?`, repositoryID, name)
	b, err := scanBranch(row)
	if err != nil {
		return nil, notFound(err, "branch "+name)
	}
	return b, nil
}

// ListBranches returns the branches of a repository sorted by name.
func (s *Store) ListBranches(ctx context.Context, repositoryID string) ([]*store.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE repository_id = ? ORDER BY name`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var out []*store.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return out, nil
}

const mergeColumns = `id, repository_id, source, target, source_head, target_head, base_id, strategy, state,
	merged, result_id, message, author, created_at, completed_at`

// GetMerge returns one merge attempt.
func (s *Store) GetMerge(ctx context.Context, repositoryID, id string) (*store.MergeAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+mergeColumns+` FROM merge_attempts WHERE repository_id = ? AND id = ?`, repositoryID, id)

	var (
		m                      store.MergeAttempt
		strategy, state        string
		merged                 []byte
		createdAt, completedAt int64
	)
	err := row.Scan(&m.ID, &m.RepositoryID, &m.Source, &m.Target, &m.SourceHead, &m.TargetHead, &m.Base,
		&strategy, &state, &merged, &m.Result, &m.Message, &m.Author, &createdAt, &completedAt)
	if err != nil {
		return nil, notFound(err, "merge "+id)
	}
	m.Merged, err = payload.Unmarshal(merged)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", id, err)
	}
	m.Strategy = store.MergeStrategy(strategy)
	m.State = store.MergeState(state)
	m.CreatedAt = fromMillis(createdAt)
	m.CompletedAt = fromOptionalMillis(completedAt)
	return &m, nil
}

const conflictColumns = `id, repository_id, merge_id, seq, ours_id, theirs_id, path, ours_value, theirs_value,
	status, resolved_value, resolver, resolved_at`

func scanConflict(row rowScanner) (*store.Conflict, error) {
	var (
		c                      store.Conflict
		path, status           string
		ours, theirs, resolved []byte
		resolvedAt             int64
	)
	if err := row.Scan(&c.ID, &c.RepositoryID, &c.MergeID, &c.Seq, &c.Ours, &c.Theirs, &path,
		&ours, &theirs, &status, &resolved, &c.Resolver, &resolvedAt); err != nil {
		return nil, err
	}
	var err error
	if c.OursValue, err = payload.UnmarshalValue(ours); err != nil {
		return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
	}
	if c.TheirsValue, err = payload.UnmarshalValue(theirs); err != nil {
		return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
	}
	if c.Resolved, err = payload.UnmarshalValue(resolved); err != nil {
		return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
	}
	c.Path = payload.ParsePath(path)
	c.Status = store.ConflictStatus(status)
	c.ResolvedAt = fromOptionalMillis(resolvedAt)
	return &c, nil
}

// GetConflict returns one conflict.
func (s *Store) GetConflict(ctx context.Context, repositoryID, id string) (*store.Conflict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE repository_id = ? AND id = ?`, repositoryID, id)
	c, err := scanConflict(row)
	if err != nil {
		return nil, notFound(err, "conflict "+id)
	}
	return c, nil
}

// ListConflicts returns the conflicts of one merge attempt ordered by seq.
func (s *Store) ListConflicts(ctx context.Context, repositoryID, mergeID string) ([]*store.Conflict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE repository_id = ? AND merge_id = ? ORDER BY seq`,
		repositoryID, mergeID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*store.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return out, nil
}

// Apply writes the batch inside one transaction.
func (s *Store) Apply(ctx context.Context, b *store.Batch) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, op := range b.Ops {
		if err = applyOp(ctx, tx, op); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func applyOp(ctx context.Context, tx queryer, op store.Op) error {
	switch op.Kind {
	case store.OpCreateRepository:
		r := op.Repository
		_, err := tx.ExecContext(ctx,
			`INSERT INTO repositories (id, content_item_id, default_branch, created_at) VALUES (?, ?, ?, ?)`,
			r.ID, r.ContentItemID, r.DefaultBranch, toMillis(r.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("repository %s: %w", r.ID, store.ErrAlreadyExists)
			}
			return fmt.Errorf("create repository: %w", err)
		}
		return nil

	case store.OpInsertVersion:
		return insertVersion(ctx, tx, op.Version)

	case store.OpCreateBranch:
		br := op.Branch
		if err := requireRepository(ctx, tx, br.RepositoryID); err != nil {
			return err
		}
		if err := requireVersion(ctx, tx, br.RepositoryID, br.Head); err != nil {
			return fmt.Errorf("head of branch %s: %w", br.Name, err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO branches (`+branchColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			br.RepositoryID, br.Name, br.Head, br.Base, toMillis(br.CreatedAt), toMillis(br.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("branch %s: %w", br.Name, store.ErrAlreadyExists)
			}
			return fmt.Errorf("create branch: %w", err)
		}
		return nil

	case store.OpUpdateBranch:
		br := op.Branch
		var head string
		err := tx.QueryRowContext(ctx,
			`SELECT head_id FROM branches WHERE repository_id = ? AND name = ?`, br.RepositoryID, br.Name).Scan(&head)
		if err != nil {
			return notFound(err, "branch "+br.Name)
		}
		if op.ExpectHead != "" && head != op.ExpectHead {
			return fmt.Errorf("branch %s: %w", br.Name, store.ErrHeadMoved)
		}
		if err := requireVersion(ctx, tx, br.RepositoryID, br.Head); err != nil {
			return fmt.Errorf("head of branch %s: %w", br.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE branches SET head_id = ?, updated_at = ? WHERE repository_id = ? AND name = ?`,
			br.Head, toMillis(br.UpdatedAt), br.RepositoryID, br.Name); err != nil {
			return fmt.Errorf("move branch: %w", err)
		}
		return nil

	case store.OpDeleteBranch:
		res, err := tx.ExecContext(ctx,
			`DELETE FROM branches WHERE repository_id = ? AND name = ?`, op.Branch.RepositoryID, op.Branch.Name)
		if err != nil {
			return fmt.Errorf("delete branch: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("branch %s: %w", op.Branch.Name, store.ErrNotFound)
		}
		return nil

	case store.OpPutMerge:
		return putMerge(ctx, tx, op.Merge)

	case store.OpPutConflict:
		return putConflict(ctx, tx, op.Conflict)
	}
	return fmt.Errorf("unknown batch op %d", op.Kind)
}

func insertVersion(ctx context.Context, tx queryer, v *store.Version) error {
	if err := requireRepository(ctx, tx, v.RepositoryID); err != nil {
		return err
	}
	for _, p := range v.Parents() {
		if err := requireVersion(ctx, tx, v.RepositoryID, p); err != nil {
			return fmt.Errorf("parent of version %s: %w", v.ID, err)
		}
	}
	raw, err := payload.Marshal(v.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RepositoryID, v.Hash.String(), v.Ordinal, raw, v.Message, v.Author, v.Branch,
		v.Parent, v.MergeParent, toMillis(v.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("version %s: %w", v.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func putMerge(ctx context.Context, tx queryer, m *store.MergeAttempt) error {
	if err := requireRepository(ctx, tx, m.RepositoryID); err != nil {
		return err
	}
	merged, err := payload.Marshal(m.Merged)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO merge_attempts (`+mergeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   merged = excluded.merged,
		   result_id = excluded.result_id,
		   completed_at = excluded.completed_at`,
		m.ID, m.RepositoryID, m.Source, m.Target, m.SourceHead, m.TargetHead, m.Base,
		string(m.Strategy), string(m.State), merged, m.Result, m.Message, m.Author,
		toMillis(m.CreatedAt), toOptionalMillis(m.CompletedAt))
	if err != nil {
		return fmt.Errorf("put merge: %w", err)
	}
	return nil
}

func putConflict(ctx context.Context, tx queryer, c *store.Conflict) error {
	if err := requireRepository(ctx, tx, c.RepositoryID); err != nil {
		return err
	}
	ours, err := payload.MarshalValue(c.OursValue)
	if err != nil {
		return err
	}
	theirs, err := payload.MarshalValue(c.TheirsValue)
	if err != nil {
		return err
	}
	resolved, err := payload.MarshalValue(c.Resolved)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conflicts (`+conflictColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   resolved_value = excluded.resolved_value,
		   resolver = excluded.resolver,
		   resolved_at = excluded.resolved_at`,
		c.ID, c.RepositoryID, c.MergeID, c.Seq, c.Ours, c.Theirs, c.Path.String(), ours, theirs,
		string(c.Status), resolved, c.Resolver, toOptionalMillis(c.ResolvedAt))
	if err != nil {
		return fmt.Errorf("put conflict: %w", err)
	}
	return nil
}

// DeleteRepository removes a repository and every row it owns.
func (s *Store) DeleteRepository(ctx context.Context, id string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = requireRepository(ctx, tx, id); err != nil {
		return err
	}
	for _, table := range []string{"conflicts", "merge_attempts", "branches", "versions"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE repository_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func requireRepository(ctx context.Context, tx queryer, id string) error {
	var found int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM repositories WHERE id = ?`, id).Scan(&found)
	return notFound(err, "repository "+id)
}

func requireVersion(ctx context.Context, tx queryer, repositoryID, id string) error {
	var found int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM versions WHERE repository_id = ? AND id = ?`, repositoryID, id).Scan(&found)
	return notFound(err, "version "+id)
}

// notFound maps sql.ErrNoRows onto store.ErrNotFound and passes nil through
func notFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
