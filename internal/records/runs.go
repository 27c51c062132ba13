package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lectern/internal/services"
)

const runColumns = "id, video_id, status, error_message, created_at, updated_at, finished_at"

// CreateRun opens a new pipeline run for a video. Only one queued or running
// run may exist per video; a second attempt reports ErrAlreadyRunning.
func (s *Store) CreateRun(ctx context.Context, videoID int64) (*Run, error) {
	runID := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	// The subquery guard and the UNIQUE-free insert run in one statement so
	// two concurrent submits cannot both pass the check.
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO runs (id, video_id, status, created_at, updated_at)
         SELECT ?, ?, ?, ?, ?
         WHERE NOT EXISTS (
             SELECT 1 FROM runs WHERE video_id = ? AND status IN (?, ?)
         )`,
		runID,
		videoID,
		RunQueued,
		timestamp,
		timestamp,
		videoID,
		RunQueued,
		RunRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrAlreadyRunning, "", "submit",
			fmt.Sprintf("video %d already has an active run", videoID), nil)
	}
	return s.GetRun(ctx, runID)
}

// GetRun fetches a run by identifier. Missing rows return nil.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, strings.TrimSpace(runID))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ActiveRunForVideo returns the queued or running run for a video, if any.
func (s *Store) ActiveRunForVideo(ctx context.Context, videoID int64) (*Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+runColumns+` FROM runs WHERE video_id = ? AND status IN (?, ?) LIMIT 1`,
		videoID,
		RunQueued,
		RunRunning,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active run: %w", err)
	}
	return run, nil
}

// MarkRunRunning flips a queued run to running.
func (s *Store) MarkRunRunning(ctx context.Context, runID string) error {
	return s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		RunRunning,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		RunQueued,
	)
}

// FinishRun closes a run with a terminal status and optional error message.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, errorMessage string) error {
	if status != RunSucceeded && status != RunFailed {
		return fmt.Errorf("run status %q is not terminal", status)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableString(errorMessage),
		now,
		now,
		runID,
	)
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		status      string
		errMessage  sql.NullString
		createdRaw  string
		updatedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.VideoID,
		&status,
		&errMessage,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.ErrorMessage = errMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}
