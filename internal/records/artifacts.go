package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertTranscript stores or refreshes the transcript for a video.
func (s *Store) UpsertTranscript(ctx context.Context, transcript *Transcript) error {
	if transcript == nil {
		return errors.New("transcript is nil")
	}
	now := time.Now().UTC()
	transcript.UpdatedAt = now
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = now
	}
	return s.execWithoutResultRetry(
		ctx,
		`INSERT INTO transcripts (video_id, content, language, confidence, segments_json, model, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(video_id) DO UPDATE SET
             content = excluded.content,
             language = excluded.language,
             confidence = excluded.confidence,
             segments_json = excluded.segments_json,
             model = excluded.model,
             updated_at = excluded.updated_at`,
		transcript.VideoID,
		transcript.Content,
		nullableString(transcript.Language),
		transcript.Confidence,
		nullableString(transcript.SegmentsJSON),
		nullableString(transcript.Model),
		transcript.CreatedAt.Format(time.RFC3339Nano),
		transcript.UpdatedAt.Format(time.RFC3339Nano),
	)
}

// GetTranscript fetches the transcript for a video. Missing rows return nil.
func (s *Store) GetTranscript(ctx context.Context, videoID int64) (*Transcript, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT video_id, content, language, confidence, segments_json, model, created_at, updated_at
         FROM transcripts WHERE video_id = ?`,
		videoID,
	)
	var (
		transcript Transcript
		language   sql.NullString
		segments   sql.NullString
		model      sql.NullString
		createdRaw string
		updatedRaw string
	)
	err := row.Scan(
		&transcript.VideoID,
		&transcript.Content,
		&language,
		&transcript.Confidence,
		&segments,
		&model,
		&createdRaw,
		&updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	transcript.Language = language.String
	transcript.SegmentsJSON = segments.String
	transcript.Model = model.String
	if created, err := parseTimeString(createdRaw); err == nil {
		transcript.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		transcript.UpdatedAt = updated
	}
	return &transcript, nil
}

// UpsertSummary stores or refreshes the analysis summary for a video.
func (s *Store) UpsertSummary(ctx context.Context, summary *Summary) error {
	if summary == nil {
		return errors.New("summary is nil")
	}
	now := time.Now().UTC()
	summary.UpdatedAt = now
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = now
	}
	return s.execWithoutResultRetry(
		ctx,
		`INSERT INTO summaries (video_id, body, themes_json, conclusions_json, key_points_json, word_count, model, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(video_id) DO UPDATE SET
             body = excluded.body,
             themes_json = excluded.themes_json,
             conclusions_json = excluded.conclusions_json,
             key_points_json = excluded.key_points_json,
             word_count = excluded.word_count,
             model = excluded.model,
             updated_at = excluded.updated_at`,
		summary.VideoID,
		summary.Body,
		nullableString(summary.ThemesJSON),
		nullableString(summary.ConclusionsJSON),
		nullableString(summary.KeyPointsJSON),
		summary.WordCount,
		nullableString(summary.Model),
		summary.CreatedAt.Format(time.RFC3339Nano),
		summary.UpdatedAt.Format(time.RFC3339Nano),
	)
}

// GetSummary fetches the summary for a video. Missing rows return nil.
func (s *Store) GetSummary(ctx context.Context, videoID int64) (*Summary, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT video_id, body, themes_json, conclusions_json, key_points_json, word_count, model, created_at, updated_at
         FROM summaries WHERE video_id = ?`,
		videoID,
	)
	var (
		summary     Summary
		themes      sql.NullString
		conclusions sql.NullString
		keyPoints   sql.NullString
		model       sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	err := row.Scan(
		&summary.VideoID,
		&summary.Body,
		&themes,
		&conclusions,
		&keyPoints,
		&summary.WordCount,
		&model,
		&createdRaw,
		&updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	summary.ThemesJSON = themes.String
	summary.ConclusionsJSON = conclusions.String
	summary.KeyPointsJSON = keyPoints.String
	summary.Model = model.String
	if created, err := parseTimeString(createdRaw); err == nil {
		summary.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		summary.UpdatedAt = updated
	}
	return &summary, nil
}

// ReplaceSegments swaps every segment for a video with the provided set.
func (s *Store) ReplaceSegments(ctx context.Context, videoID int64, segments []*Segment) error {
	tx, err := s.db.BeginTx(ensureContext(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin segments tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}
	if err := insertSegmentsTx(ctx, tx, videoID, segments); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segments: %w", err)
	}
	return nil
}

// AppendSegments adds segments after the video's current highest position.
func (s *Store) AppendSegments(ctx context.Context, videoID int64, segments []*Segment) error {
	tx, err := s.db.BeginTx(ensureContext(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin segments tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var maxPosition sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM segments WHERE video_id = ?`, videoID)
	if err := row.Scan(&maxPosition); err != nil {
		return fmt.Errorf("max segment position: %w", err)
	}
	offset := int(maxPosition.Int64)
	for _, segment := range segments {
		segment.Position += offset
	}
	if err := insertSegmentsTx(ctx, tx, videoID, segments); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segments: %w", err)
	}
	return nil
}

func insertSegmentsTx(ctx context.Context, tx *sql.Tx, videoID int64, segments []*Segment) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	for _, segment := range segments {
		if segment == nil {
			continue
		}
		segment.VideoID = videoID
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO segments (video_id, title, description, start_seconds, end_seconds, position, relevance, category, clip_path, thumbnail_path, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			videoID,
			segment.Title,
			nullableString(segment.Description),
			segment.StartSeconds,
			segment.EndSeconds,
			segment.Position,
			segment.Relevance,
			nullableString(segment.Category),
			nullableString(segment.ClipPath),
			nullableString(segment.ThumbnailPath),
			timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", segment.Position, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			segment.ID = id
		}
	}
	return nil
}

// ListSegments returns a video's segments ascending by position.
func (s *Store) ListSegments(ctx context.Context, videoID int64) ([]*Segment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, video_id, title, description, start_seconds, end_seconds, position, relevance, category, clip_path, thumbnail_path, created_at
         FROM segments WHERE video_id = ? ORDER BY position`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		var (
			segment       Segment
			description   sql.NullString
			category      sql.NullString
			clipPath      sql.NullString
			thumbnailPath sql.NullString
			createdRaw    string
		)
		if err := rows.Scan(
			&segment.ID,
			&segment.VideoID,
			&segment.Title,
			&description,
			&segment.StartSeconds,
			&segment.EndSeconds,
			&segment.Position,
			&segment.Relevance,
			&category,
			&clipPath,
			&thumbnailPath,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		segment.Description = description.String
		segment.Category = category.String
		segment.ClipPath = clipPath.String
		segment.ThumbnailPath = thumbnailPath.String
		if created, err := parseTimeString(createdRaw); err == nil {
			segment.CreatedAt = created
		}
		segments = append(segments, &segment)
	}
	return segments, rows.Err()
}

// UpdateSegmentFiles records the produced clip and thumbnail for a segment.
func (s *Store) UpdateSegmentFiles(ctx context.Context, segmentID int64, clipPath, thumbnailPath string) error {
	return s.execWithoutResultRetry(
		ctx,
		`UPDATE segments SET clip_path = ?, thumbnail_path = ? WHERE id = ?`,
		nullableString(clipPath),
		nullableString(thumbnailPath),
		segmentID,
	)
}
