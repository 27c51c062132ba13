package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store manages the durable task queue. It shares the records database so
// task state and video state move under the same file and pragmas.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database connection. The tasks table is created by
// the records migrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const taskColumns = "id, run_id, video_id, stage, attempt, status, run_after, payload_json, last_error, last_heartbeat, created_at, updated_at"

// Spec describes a task to insert.
type Spec struct {
	RunID       string
	VideoID     int64
	Stage       string
	Attempt     int
	RunAfter    time.Time
	PayloadJSON string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTask(ctx context.Context, ex execer, spec Spec) (int64, error) {
	attempt := spec.Attempt
	if attempt < 1 {
		attempt = 1
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := ex.ExecContext(
		ctx,
		`INSERT INTO tasks (run_id, video_id, stage, attempt, status, run_after, payload_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.RunID,
		spec.VideoID,
		spec.Stage,
		attempt,
		StatusQueued,
		spec.RunAfter.UTC().Format(time.RFC3339Nano),
		nullableString(spec.PayloadJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Enqueue inserts a queued task due at runAfter.
func (s *Store) Enqueue(ctx context.Context, runID string, videoID int64, stage string, attempt int, runAfter time.Time, payloadJSON string) (*Task, error) {
	id, err := insertTask(ctx, s.db, Spec{
		RunID:       runID,
		VideoID:     videoID,
		Stage:       stage,
		Attempt:     attempt,
		RunAfter:    runAfter,
		PayloadJSON: payloadJSON,
	})
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// EnqueueTx inserts a queued task inside a caller-owned transaction so the
// insert commits atomically with writes on other tables of the shared
// database.
func (s *Store) EnqueueTx(ctx context.Context, tx *sql.Tx, spec Spec) error {
	_, err := insertTask(ctx, tx, spec)
	return err
}

// CompleteAndEnqueue marks a running task succeeded and inserts its successor
// tasks in one transaction. A crash can never record the completion without
// the continuations it owes, which would strand the run: the stale-task
// reclaimer only revives running rows.
func (s *Store) CompleteAndEnqueue(ctx context.Context, id int64, successors []Spec) error {
	if len(successors) == 0 {
		return s.Complete(ctx, id)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, last_error = NULL, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		StatusSucceeded,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark task %s: %w", StatusSucceeded, err)
	}
	for _, spec := range successors {
		if _, err := insertTask(ctx, tx, spec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

// GetTask fetches a task by identifier. Missing rows return nil.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ClaimNextDue atomically moves the oldest due queued task to running and
// returns it. Returns nil when nothing is due.
func (s *Store) ClaimNextDue(ctx context.Context, now time.Time) (*Task, error) {
	timestamp := now.UTC().Format(time.RFC3339Nano)
	var claimedID int64
	// The single-statement UPDATE is the claim; concurrent workers race on
	// the same row and only one sees it.
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE tasks SET status = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = (
             SELECT id FROM tasks WHERE status = ? AND run_after <= ? ORDER BY run_after, id LIMIT 1
         )
         RETURNING id`,
		StatusRunning,
		timestamp,
		timestamp,
		StatusQueued,
		timestamp,
	)
	if err := row.Scan(&claimedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return s.GetTask(ctx, claimedID)
}

// Complete marks a running task succeeded with no continuation. Stages that
// owe successors go through CompleteAndEnqueue instead.
func (s *Store) Complete(ctx context.Context, id int64) error {
	return s.setTerminal(ctx, id, StatusSucceeded, "")
}

// Fail marks a task failed with its final error.
func (s *Store) Fail(ctx context.Context, id int64, lastError string) error {
	return s.setTerminal(ctx, id, StatusFailed, lastError)
}

// Cancel marks a task cancelled.
func (s *Store) Cancel(ctx context.Context, id int64, reason string) error {
	return s.setTerminal(ctx, id, StatusCancelled, reason)
}

func (s *Store) setTerminal(ctx context.Context, id int64, status Status, lastError string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, last_error = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		status,
		nullableString(lastError),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark task %s: %w", status, err)
	}
	return nil
}

// Requeue schedules another attempt of a failed-but-retryable task.
func (s *Store) Requeue(ctx context.Context, id int64, attempt int, runAfter time.Time, lastError string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, attempt = ?, run_after = ?, last_error = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusQueued,
		attempt,
		runAfter.UTC().Format(time.RFC3339Nano),
		nullableString(lastError),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	return nil
}

// Heartbeat refreshes the liveness marker of a running task.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("task heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale requeues running tasks whose heartbeat is older than cutoff.
// The attempt counter is untouched; the work simply runs again.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// TasksForRun lists a run's tasks oldest first.
func (s *Store) TasksForRun(ctx context.Context, runID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("tasks for run: %w", err)
	}
	defer rows.Close()

	var result []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

// CountByStatus returns per-status task counts for daemon status reporting.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task         Task
		status       string
		runAfterRaw  string
		payload      sql.NullString
		lastError    sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&task.ID,
		&task.RunID,
		&task.VideoID,
		&task.Stage,
		&task.Attempt,
		&status,
		&runAfterRaw,
		&payload,
		&lastError,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	task.Status = Status(status)
	task.PayloadJSON = payload.String
	task.LastError = lastError.String
	if runAfter, err := parseTimeString(runAfterRaw); err == nil {
		task.RunAfter = runAfter
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			task.LastHeartbeat = &heartbeat
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return &task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
