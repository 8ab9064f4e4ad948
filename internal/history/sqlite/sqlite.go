package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/gambit/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite history schema: %w", err)
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + history.Table + `(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TIMESTAMP NOT NULL,
			event TEXT NOT NULL,
			engine_id TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			side TEXT NOT NULL,
			move TEXT NULL,
			result TEXT NULL,
			comment TEXT NULL,
			reason TEXT NULL,
			error TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + history.Table + `_engine ON ` + history.Table + `(engine_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+history.Table+`(occurred_at, event, engine_id, name, pid, side, move, result, comment, reason, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), rec.EngineID, rec.Name, rec.PID, rec.Side,
		nullable(rec.Move), nullable(rec.Result), nullable(rec.Comment), nullable(rec.Reason), nullable(rec.Error))
	return err
}

// Count returns the number of stored events of type t, or of all types
// when t is empty.
func (s *Sink) Count(ctx context.Context, t history.EventType) (int, error) {
	q := `SELECT COUNT(*) FROM ` + history.Table
	args := []any{}
	if t != "" {
		q += ` WHERE event = ?`
		args = append(args, string(t))
	}
	var n int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
