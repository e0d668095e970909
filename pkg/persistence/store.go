package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"triad/pkg/logx"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

const timeLayout = time.RFC3339Nano

// Store is the run database. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the database at dbPath and brings its
// schema up to date. Use ":memory:" for a private in-memory database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single connection also keeps
	// in-memory databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger := logx.NewLogger("persistence")
	logger.Debug("database ready: %s", dbPath)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts or updates a run.
func (s *Store) SaveRun(ctx context.Context, r *RunRecord) error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	var ended string
	if !r.EndedAt.IsZero() {
		ended = r.EndedAt.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, task_index, instance_id, task, state, reason, rounds, replans,
			cost_usd, tokens, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_index = excluded.task_index,
			instance_id = excluded.instance_id,
			task = excluded.task,
			state = excluded.state,
			reason = excluded.reason,
			rounds = excluded.rounds,
			replans = excluded.replans,
			cost_usd = excluded.cost_usd,
			tokens = excluded.tokens,
			error = excluded.error,
			ended_at = excluded.ended_at`,
		r.ID, r.TaskIndex, r.InstanceID, r.Task, r.State, r.Reason, r.Rounds, r.Replans,
		r.CostUSD, r.Tokens, r.Error, r.StartedAt.UTC().Format(timeLayout), ended,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	if r.Grade != nil {
		return s.SaveGrade(ctx, r.ID, *r.Grade)
	}
	return nil
}

// SaveRound stores one round. The run must already exist.
func (s *Store) SaveRound(ctx context.Context, r *RoundRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rounds (run_id, idx, input, coder_output, feedback, signal,
			cost_usd, tokens, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Index, r.Input, r.CoderOutput, r.Feedback, r.Signal,
		r.CostUSD, r.Tokens, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save round %d of run %s: %w", r.Index, r.RunID, err)
	}
	return nil
}

// SaveGrade attaches a grading result to a run.
func (s *Store) SaveGrade(ctx context.Context, runID string, g Grade) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET graded = 1, f2p_passed = ?, f2p_total = ?, p2p_passed = ?, p2p_total = ?
		WHERE id = ?`,
		g.FailToPassPassed, g.FailToPassTotal, g.PassToPassPassed, g.PassToPassTotal, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to save grade for run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}

const runColumns = `id, task_index, instance_id, task, state, reason, rounds, replans,
	cost_usd, tokens, error, started_at, ended_at, graded, f2p_passed, f2p_total, p2p_passed, p2p_total`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		r              RunRecord
		started, ended string
		graded         bool
		g              Grade
	)
	err := row.Scan(&r.ID, &r.TaskIndex, &r.InstanceID, &r.Task, &r.State, &r.Reason, &r.Rounds, &r.Replans,
		&r.CostUSD, &r.Tokens, &r.Error, &started, &ended, &graded,
		&g.FailToPassPassed, &g.FailToPassTotal, &g.PassToPassPassed, &g.PassToPassTotal)
	if err != nil {
		return nil, err
	}
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("bad started_at for run %s: %w", r.ID, err)
	}
	if ended != "" {
		if r.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
			return nil, fmt.Errorf("bad ended_at for run %s: %w", r.ID, err)
		}
	}
	if graded {
		r.Grade = &g
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run and its rounds in index order.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, []RoundRow, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, idx, input, coder_output, feedback, signal, cost_usd, tokens, duration_ms
		FROM rounds WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rounds for run %s: %w", id, err)
	}
	defer rows.Close()

	rounds := []RoundRow{}
	for rows.Next() {
		var (
			r  RoundRow
			ms int64
		)
		if err := rows.Scan(&r.RunID, &r.Index, &r.Input, &r.CoderOutput, &r.Feedback, &r.Signal,
			&r.CostUSD, &r.Tokens, &ms); err != nil {
			return nil, nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}
	return run, rounds, nil
}
