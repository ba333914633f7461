package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS investigations (
    id           TEXT PRIMARY KEY,
    goal         TEXT NOT NULL,
    status       TEXT NOT NULL,
    started_at   DATETIME NOT NULL,
    completed_at DATETIME,
    error        TEXT NOT NULL DEFAULT '',
    session_json BLOB
);
CREATE INDEX IF NOT EXISTS idx_investigations_status ON investigations(status);
CREATE INDEX IF NOT EXISTS idx_investigations_started_at ON investigations(started_at DESC);
`

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite store at path.
func NewSQLiteStore(path string) (Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	// modernc sqlite is single-writer; serialize access.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &sqliteStore{db: conn}, nil
}

func (s *sqliteStore) Put(ctx context.Context, inv *Investigation) error {
	var completedAt interface{}
	if !inv.CompletedAt.IsZero() {
		completedAt = inv.CompletedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO investigations (id, goal, status, started_at, completed_at, error, session_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    goal = excluded.goal,
    status = excluded.status,
    started_at = excluded.started_at,
    completed_at = excluded.completed_at,
    error = excluded.error,
    session_json = excluded.session_json`,
		inv.ID, inv.Goal, inv.Status, inv.StartedAt.UTC(), completedAt, inv.Error, inv.SessionJSON)
	if err != nil {
		return fmt.Errorf("storing investigation %s: %w", inv.ID, err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*Investigation, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, goal, status, started_at, completed_at, error, session_json
FROM investigations WHERE id = ?`, id)
	inv, err := scanInvestigation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading investigation %s: %w", id, err)
	}
	return inv, nil
}

func (s *sqliteStore) List(ctx context.Context, limit int, status string) ([]*Investigation, error) {
	query := `
SELECT id, goal, status, started_at, completed_at, error, session_json
FROM investigations`
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing investigations: %w", err)
	}
	defer rows.Close()

	var out []*Investigation
	for rows.Next() {
		inv, err := scanInvestigation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning investigation row: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanInvestigation(row scannable) (*Investigation, error) {
	var inv Investigation
	var completedAt sql.NullTime
	if err := row.Scan(&inv.ID, &inv.Goal, &inv.Status, &inv.StartedAt, &completedAt, &inv.Error, &inv.SessionJSON); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		inv.CompletedAt = completedAt.Time
	}
	return &inv, nil
}

// Open builds a store from the configured database type.
func Open(dbType, sqlitePath string) (Store, error) {
	switch dbType {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown database type %q", dbType)
	}
}
