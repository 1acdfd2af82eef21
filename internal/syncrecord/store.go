package syncrecord

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeFormat keeps timestamps fixed-width so they sort lexically, and matches
// what the workflow scripts write.
const timeFormat = "2006-01-02T15:04:05.000000-07:00"

// store is one open sync database.
type store struct {
	db   *sql.DB
	path string
}

// openStore opens the database at path and pings it. Errors are returned
// unwrapped so the caller can classify them.
func openStore(ctx context.Context, path string) (*store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection per process; concurrent processes serialize on the
	// database lock through busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db: db, path: path}, nil
}

func (s *store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *store) initPragmas(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
);`); err != nil {
		return err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var migs []migration
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		v, err := parseMigrationVersion(f.Name())
		if err != nil {
			return err
		}
		body, err := migrationsFS.ReadFile("migrations/" + f.Name())
		if err != nil {
			return err
		}
		migs = append(migs, migration{Version: v, Name: f.Name(), SQL: string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	for _, m := range migs {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

func (s *store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (s *store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

func parseMigrationVersion(filename string) (int, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, _, _ := strings.Cut(base, "_")
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("invalid migration version in %s", filename)
	}
	return v, nil
}

func (s *store) insert(ctx context.Context, e *Entry) error {
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = data
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO agent_synchronizations (
  sync_id, agent_id, worktree_path, worktree_id, flow_token, sync_type,
  source_location, target_location, pattern, status,
  created_at, completed_at, created_by, metadata
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SyncID, e.AgentID, nullString(e.WorktreePath), nullString(e.WorktreeID), e.FlowToken, e.SyncType,
		e.SourceLocation, e.TargetLocation, e.Pattern, e.Status,
		e.CreatedAt.UTC().Format(timeFormat), e.CompletedAt.UTC().Format(timeFormat), e.CreatedBy, string(metadata),
	)
	return err
}

func (s *store) list(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.SyncType != "" {
		where = append(where, "sync_type = ?")
		args = append(args, f.SyncType)
	}
	if f.Pattern != "" {
		where = append(where, "pattern = ?")
		args = append(args, f.Pattern)
	}
	if f.WorktreeID != "" {
		where = append(where, "worktree_id = ?")
		args = append(args, f.WorktreeID)
	}
	if f.FlowToken != "" {
		where = append(where, "flow_token = ?")
		args = append(args, f.FlowToken)
	}

	q := `SELECT sync_id, agent_id, worktree_path, worktree_id, flow_token, sync_type,
  source_location, target_location, pattern, status,
  created_at, completed_at, created_by, metadata
FROM agent_synchronizations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e                      Entry
			path, id, token        sql.NullString
			createdAt, completedAt sql.NullString
			metadata               string
		)
		if err := rows.Scan(&e.SyncID, &e.AgentID, &path, &id, &token, &e.SyncType,
			&e.SourceLocation, &e.TargetLocation, &e.Pattern, &e.Status,
			&createdAt, &completedAt, &e.CreatedBy, &metadata); err != nil {
			return nil, err
		}
		e.WorktreePath = path.String
		e.WorktreeID = id.String
		e.FlowToken = token.String
		e.CreatedAt = parseTime(createdAt.String)
		e.CompletedAt = parseTime(completedAt.String)
		if metadata != "" && metadata != "{}" {
			// Rows written by other tools may carry anything here; a bad
			// payload should not hide the row.
			_ = json.Unmarshal([]byte(metadata), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
