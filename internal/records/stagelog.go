package records

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const stageLogColumns = "id, video_id, stage, outcome, message, error_detail, duration_ms, created_at"

// AppendStageLog adds one audit row for a video. The log is append-only.
func (s *Store) AppendStageLog(ctx context.Context, entry *StageLogEntry) error {
	if entry == nil {
		return fmt.Errorf("stage log entry is nil")
	}
	entry.CreatedAt = time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO stage_logs (video_id, stage, outcome, message, error_detail, duration_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.VideoID,
		entry.Stage,
		string(entry.Outcome),
		nullableString(entry.Message),
		nullableString(entry.ErrorDetail),
		entry.DurationMS,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append stage log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// RecentLogs returns the newest stage log entries for a video, newest first.
// A non-positive limit defaults to 20.
func (s *Store) RecentLogs(ctx context.Context, videoID int64, limit int) ([]*StageLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+stageLogColumns+` FROM stage_logs WHERE video_id = ? ORDER BY id DESC LIMIT ?`,
		videoID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	defer rows.Close()

	var entries []*StageLogEntry
	for rows.Next() {
		entry, err := scanStageLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanStageLog(scanner interface{ Scan(dest ...any) error }) (*StageLogEntry, error) {
	var (
		entry       StageLogEntry
		outcome     string
		message     sql.NullString
		errorDetail sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.VideoID,
		&entry.Stage,
		&outcome,
		&message,
		&errorDetail,
		&entry.DurationMS,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	entry.Outcome = Outcome(outcome)
	entry.Message = message.String
	entry.ErrorDetail = errorDetail.String
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return &entry, nil
}
