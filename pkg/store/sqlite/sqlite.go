package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/deepprobe/pkg/research"
	"github.com/nstogner/deepprobe/pkg/store"
)

// Store implements RunStore using SQLite.
type Store struct {
	db *sql.DB
}

// Verify interface compliance at compile time.
var _ store.RunStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		interaction_id TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		report_path TEXT NOT NULL DEFAULT '',
		total_tokens INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_interaction ON runs(interaction_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Create(ctx context.Context, run *store.Run) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, interaction_id, topic, status, report_path, total_tokens, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InteractionID, run.Topic, string(run.Status),
		run.ReportPath, run.TotalTokens,
		run.CreatedAt, run.UpdatedAt, nullableTime(run.CompletedAt),
	)
	return err
}

func (s *Store) Get(ctx context.Context, interactionID string) (*store.Run, error) {
	run := &store.Run{}
	var status string
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, interaction_id, topic, status, report_path, total_tokens, created_at, updated_at, completed_at
		 FROM runs WHERE interaction_id = ?`, interactionID,
	).Scan(&run.ID, &run.InteractionID, &run.Topic, &status,
		&run.ReportPath, &run.TotalTokens,
		&run.CreatedAt, &run.UpdatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", interactionID)
	}
	if err != nil {
		return nil, err
	}
	run.Status = research.Status(status)
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	return run, nil
}

func (s *Store) List(ctx context.Context) ([]store.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, interaction_id, topic, status, report_path, total_tokens, created_at, updated_at, completed_at
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		var status string
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.InteractionID, &run.Topic, &status,
			&run.ReportPath, &run.TotalTokens,
			&run.CreatedAt, &run.UpdatedAt, &completedAt,
		); err != nil {
			return nil, err
		}
		run.Status = research.Status(status)
		if completedAt.Valid {
			run.CompletedAt = completedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) Update(ctx context.Context, run *store.Run) error {
	run.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET topic=?, status=?, report_path=?, total_tokens=?, updated_at=?, completed_at=?
		 WHERE interaction_id=?`,
		run.Topic, string(run.Status), run.ReportPath, run.TotalTokens,
		run.UpdatedAt, nullableTime(run.CompletedAt), run.InteractionID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", run.InteractionID)
	}
	return nil
}

// nullableTime maps the zero time to NULL, so unfinished runs do not carry a
// bogus completion timestamp.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
