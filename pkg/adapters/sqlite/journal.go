// Package sqlite keeps the transition journal in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aretw0/inplace/pkg/domain"
)

// Journal implements ports.Journal using SQLite.
type Journal struct {
	db *sql.DB
}

// NewJournal opens the journal at dbPath. Use ":memory:" for an in-memory database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		job_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		transition TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_project ON transitions(project);
	CREATE INDEX IF NOT EXISTS idx_transitions_job ON transitions(job_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append records an event.
func (j *Journal) Append(ctx context.Context, event domain.TransitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		"INSERT INTO transitions (project, job_id, event_type, transition, timestamp, payload) VALUES (?, ?, ?, ?, ?, ?)",
		string(event.Project), event.JobID, string(event.Type), event.Transition.String(), event.Timestamp.UnixNano(), payload,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// History returns the latest limit events of a project, oldest first.
func (j *Journal) History(ctx context.Context, project domain.ProjectKey, limit int) ([]domain.TransitionEvent, error) {
	query := "SELECT payload FROM (SELECT id, payload FROM transitions WHERE project = ? ORDER BY id DESC"
	args := []any{string(project)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	query += ") ORDER BY id"
	return j.query(ctx, query, args...)
}

// Job returns the events of a job in order.
func (j *Journal) Job(ctx context.Context, jobID string) ([]domain.TransitionEvent, error) {
	return j.query(ctx, "SELECT payload FROM transitions WHERE job_id = ? ORDER BY id", jobID)
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]domain.TransitionEvent, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.TransitionEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev domain.TransitionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
