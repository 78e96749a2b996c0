// Package history persists one row per wrapper run in a local sqlite
// database. The run log stays the authoritative, human-readable record;
// history exists so operators can ask "when did this last actually run and
// how did it go" without grepping the log.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"closebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// ErrDisabled is returned by a nil store; callers may ignore it.
var ErrDisabled = errors.New("history disabled")

// Run is one wrapper run.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Outcome       string // skipped, success, failure
	Detail        string
	ChildExit     int // -1 when unknown or not applicable
	TicketsClosed int
}

// Config controls the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	// Keep bounds the table size; Prune deletes rows beyond it.
	Keep int
}

// Store writes run rows. A nil *Store is safe and reports ErrDisabled.
type Store struct {
	db   *sql.DB
	log  logx.Logger
	keep int
}

// Open creates (or opens) the database, applies migrations, and sets the
// pragmas sqlite wants for a single-writer workload.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	keep := cfg.Keep
	if keep <= 0 {
		keep = 500
	}
	st := &Store{db: db, log: log, keep: keep}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one run. An empty ID is filled in.
func (s *Store) Append(ctx context.Context, r Run) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.ID == "" {
		r.ID = xid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = r.StartedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, finished_at, outcome, detail, child_exit, tickets_closed)
		 VALUES(?,?,?,?,?,?,?)`,
		r.ID,
		r.StartedAt.Format(time.RFC3339Nano),
		r.FinishedAt.Format(time.RFC3339Nano),
		r.Outcome,
		nullStr(r.Detail),
		r.ChildExit,
		r.TicketsClosed,
	)
	return err
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, outcome, detail, child_exit, tickets_closed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.Outcome, &detail, &r.ChildExit, &r.TicketsClosed); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.Detail = detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune drops rows beyond the configured retention count, oldest first.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
		   SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		 )`, s.keep)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
