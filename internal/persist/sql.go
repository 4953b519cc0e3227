package persist

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

//go:embed migrations
var migrations embed.FS

// SQLStore keeps workspaces in a relational database. Each node is one row
// keyed by (workspace, path); a save replaces the workspace's rows in one
// transaction.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

func newSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB returns the underlying database connection.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Migrate runs the embedded schema migrations for the store's dialect.
func (s *SQLStore) Migrate(ctx context.Context) error {
	dir := "migrations/" + s.dialect
	files, err := fs.Glob(migrations, dir+"/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", logging.String("file", f))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

// q rewrites ? placeholders into the dialect's form.
func (s *SQLStore) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Load(ctx context.Context, workspace string) (snap *models.Snapshot, err error) {
	defer func(start time.Time) { observe(s.dialect, "load", start, err) }(time.Now())
	if err := ValidateWorkspaceName(workspace); err != nil {
		return nil, err
	}

	snap = emptySnapshot(workspace)
	var updated time.Time
	err = s.db.QueryRowContext(ctx,
		s.q(`SELECT updated_at FROM workspaces WHERE name = ?`), workspace).Scan(&updated)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load workspace %s: %w", workspace, err)
	}
	snap.SavedAt = updated.UTC()

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT path, kind FROM workspace_nodes WHERE workspace = ? ORDER BY path`), workspace)
	if err != nil {
		return nil, fmt.Errorf("load nodes of %s: %w", workspace, err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, kind string
		if err := rows.Scan(&path, &kind); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		k, ok := models.ParseKind(kind)
		if !ok {
			return nil, models.NewPathError("load", path, models.ErrInvalidKind)
		}
		snap.Entries = append(snap.Entries, models.Entry{Path: path, Kind: k})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes of %s: %w", workspace, err)
	}
	return snap, nil
}

func (s *SQLStore) Save(ctx context.Context, snap *models.Snapshot) (err error) {
	defer func(start time.Time) { observe(s.dialect, "save", start, err) }(time.Now())
	if err := ValidateWorkspaceName(snap.Workspace); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, s.q(
		`INSERT INTO workspaces (name, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET updated_at = excluded.updated_at`),
		snap.Workspace, now, now)
	if err != nil {
		return fmt.Errorf("upsert workspace %s: %w", snap.Workspace, err)
	}

	if _, err := tx.ExecContext(ctx,
		s.q(`DELETE FROM workspace_nodes WHERE workspace = ?`), snap.Workspace); err != nil {
		return fmt.Errorf("clear nodes of %s: %w", snap.Workspace, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO workspace_nodes (workspace, path, parent_path, kind) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		parent, _ := vpath.Parent(e.Path)
		if _, err := stmt.ExecContext(ctx, snap.Workspace, e.Path, parent, e.Kind.String()); err != nil {
			return fmt.Errorf("insert node %s: %w", e.Path, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, workspace string) (err error) {
	defer func(start time.Time) { observe(s.dialect, "delete", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// SQLite only enforces the cascade with foreign_keys enabled.
	if _, err := tx.ExecContext(ctx,
		s.q(`DELETE FROM workspace_nodes WHERE workspace = ?`), workspace); err != nil {
		return fmt.Errorf("delete nodes of %s: %w", workspace, err)
	}
	if _, err := tx.ExecContext(ctx,
		s.q(`DELETE FROM workspaces WHERE name = ?`), workspace); err != nil {
		return fmt.Errorf("delete workspace %s: %w", workspace, err)
	}
	return tx.Commit()
}

func (s *SQLStore) List(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { observe(s.dialect, "list", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM workspaces ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLStore) Type() string { return s.dialect }

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
