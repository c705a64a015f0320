// Package trace persists a debugging trace of a run: its steps, the actions
// taken and the runtime's working memory. It is not part of the result contract.
package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/evalrunner/internal/result"
	"github.com/metalagman/evalrunner/internal/supervisor"
)

// Store provides persistence for runs and steps.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store for run/step persistence.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run records one supervised run. It implements supervisor.Recorder.
type Run struct {
	store *Store
	id    string
}

var _ supervisor.Recorder = (*Run)(nil)

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Begin inserts a run record and a run_started event.
func (s *Store) Begin(ctx context.Context, prompt string) (*Run, error) {
	now := s.now().UTC()
	runID := "run-" + now.Format("20060102T150405.000000000")

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin create run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, prompt, status, steps) VALUES(?, ?, ?, ?, 0)`,
		runID, now.Format(time.RFC3339Nano), prompt, supervisor.Running.String()); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert run: %w", err)
	}
	if err := s.insertEvent(ctx, tx, runID, "run_started", "run started", ""); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create run: %w", err)
	}
	return &Run{store: s, id: runID}, nil
}

// RecordStep inserts the step and bumps the run's step counter in one transaction.
func (r *Run) RecordStep(ctx context.Context, rec supervisor.StepRecord) error {
	s := r.store
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record step: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO steps(run_id, step_index, status, actions, thought, error, duration_ms, recorded_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, rec.Number, string(rec.Status), string(actions), nullableString(rec.Thought), nullableString(rec.Error),
		rec.Duration.Milliseconds(), s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert step: %w", err)
	}
	if rec.Status == supervisor.StatusFailed {
		if err := s.insertEvent(ctx, tx, r.id, "step_failed", fmt.Sprintf("step %d failed", rec.Number), ""); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET steps=? WHERE run_id=?`, rec.Number, r.id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step: %w", err)
	}
	return nil
}

// RecordOutcome stores the final state and outcome document of the run.
func (r *Run) RecordOutcome(ctx context.Context, state supervisor.State, outcome result.Outcome) error {
	s := r.store
	doc, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record outcome: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, outcome=?, finished_at=? WHERE run_id=?`,
		state.String(), string(doc), s.now().UTC().Format(time.RFC3339Nano), r.id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update run: %w", err)
	}
	if err := s.insertEvent(ctx, tx, r.id, "run_finished", "run "+state.String(), ""); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome: %w", err)
	}
	return nil
}

// Message is one working-memory entry of the runtime.
type Message struct {
	Step int
	Kind string
	Text string
}

// RecordMessages appends working-memory entries to the run.
func (r *Run) RecordMessages(ctx context.Context, msgs []Message) error {
	s := r.store
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record messages: %w", err)
	}
	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM messages WHERE run_id=?`, r.id).Scan(&seq); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("read message seq: %w", err)
	}
	for _, m := range msgs {
		seq++
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages(run_id, seq, step, kind, text) VALUES(?, ?, ?, ?, ?)`,
			r.id, seq, m.Step, m.Kind, m.Text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

// StepRow is a stored step.
type StepRow struct {
	Index      int
	Status     string
	Actions    string
	Error      string
	DurationMS int64
}

// Steps returns the steps of a run in order.
func (s *Store) Steps(ctx context.Context, runID string) ([]StepRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT step_index, status, COALESCE(actions, ''), COALESCE(error, ''), duration_ms
		FROM steps WHERE run_id=? ORDER BY step_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StepRow
	for rows.Next() {
		var row StepRow
		if err := rows.Scan(&row.Index, &row.Status, &row.Actions, &row.Error, &row.DurationMS); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return out, nil
}

// Messages returns the recorded working memory of a run in order.
func (s *Store) Messages(ctx context.Context, runID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT step, kind, text FROM messages WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Step, &m.Kind, &m.Text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RunSummary is the stored state of a run.
type RunSummary struct {
	Status  string
	Steps   int
	Outcome string
}

// GetRun returns the summary of a run, or sql.ErrNoRows wrapped when missing.
func (s *Store) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	var rs RunSummary
	var outcome sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT status, steps, outcome FROM runs WHERE run_id=?`, runID).
		Scan(&rs.Status, &rs.Steps, &outcome)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, fmt.Errorf("run %s: %w", runID, err)
		}
		return RunSummary{}, fmt.Errorf("read run: %w", err)
	}
	rs.Outcome = outcome.String
	return rs, nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, runID, typ, message, dataJSON string) error {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id=?`, runID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("read event seq: %w", err)
	}
	ts := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(run_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, seq+1, ts, typ, message, nullableString(dataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
