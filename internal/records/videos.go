package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lectern/internal/services"
)

const videoColumns = "id, title, source_url, source_kind, state, asset_path, thumbnail_path, thumbnail_state, duration_seconds, format, size_mb, error_message, metadata_json, created_at, updated_at, processed_at"

// NewVideo inserts a new pending video record for a remote URL or local path.
func (s *Store) NewVideo(ctx context.Context, title, sourceURL string, kind SourceKind) (*Video, error) {
	if kind == "" {
		kind = SourceRemote
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO videos (title, source_url, source_kind, state, thumbnail_state, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableString(title),
		nullableString(sourceURL),
		string(kind),
		StatePending,
		ThumbnailPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetVideo(ctx, id)
}

// GetVideo fetches a video record by identifier. Missing rows return nil.
func (s *Store) GetVideo(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return video, nil
}

// RequireVideo fetches a video record and reports a not-found error for
// missing rows.
func (s *Store) RequireVideo(ctx context.Context, id int64) (*Video, error) {
	video, err := s.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "", fmt.Sprintf("video %d", id), nil)
	}
	return video, nil
}

// UpdateVideo persists changes to an existing video record.
func (s *Store) UpdateVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is nil")
	}
	video.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE videos
         SET title = ?, source_url = ?, source_kind = ?, state = ?, asset_path = ?,
             thumbnail_path = ?, thumbnail_state = ?, duration_seconds = ?, format = ?,
             size_mb = ?, error_message = ?, metadata_json = ?, updated_at = ?, processed_at = ?
         WHERE id = ?`,
		nullableString(video.Title),
		nullableString(video.SourceURL),
		string(video.SourceKind),
		video.State,
		nullableString(video.AssetPath),
		nullableString(video.ThumbnailPath),
		string(video.ThumbnailState),
		video.DurationSeconds,
		nullableString(video.Format),
		video.SizeMB,
		nullableString(video.ErrorMessage),
		nullableString(video.MetadataJSON),
		video.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(video.ProcessedAt),
		video.ID,
	); err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return nil
}

// TransitionState moves a video to the next state after validating the move.
func (s *Store) TransitionState(ctx context.Context, id int64, to State) error {
	video, err := s.RequireVideo(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(video.State, to) {
		return services.Wrap(services.ErrValidation, "", "transition",
			fmt.Sprintf("video %d cannot move %s -> %s", id, video.State, to), nil)
	}
	video.State = to
	if to != StateError {
		video.ErrorMessage = ""
	}
	return s.UpdateVideo(ctx, video)
}

// SettleThumbnail records the thumbnail branch outcome exactly once. A
// returned false means the branch was already settled.
func (s *Store) SettleThumbnail(ctx context.Context, id int64, state ThumbnailState, path string) (bool, error) {
	if !state.Settled() {
		return false, fmt.Errorf("thumbnail state %q is not terminal", state)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE videos SET thumbnail_state = ?, thumbnail_path = COALESCE(?, thumbnail_path), updated_at = ?
         WHERE id = ? AND thumbnail_state = ?`,
		string(state),
		nullableString(path),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		ThumbnailPending,
	)
	if err != nil {
		return false, fmt.Errorf("settle thumbnail: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const claimSegmentingQuery = `UPDATE videos SET state = ?, updated_at = ?
         WHERE id = ? AND state = ? AND thumbnail_state IN (?, ?)`

func claimSegmentingArgs(id int64) []any {
	return []any{
		StateSegmenting,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StateAnalyzing,
		ThumbnailSucceeded,
		ThumbnailFailed,
	}
}

// ClaimSegmentingTx advances a video from analyzing to segmenting exactly
// once, inside a caller-owned transaction so the claim commits atomically
// with the segmentation enqueue. The guarded UPDATE is the join barrier
// between the audio chain and the thumbnail branch; only one caller
// observes true.
func (s *Store) ClaimSegmentingTx(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, claimSegmentingQuery, claimSegmentingArgs(id)...)
	if err != nil {
		return false, fmt.Errorf("claim segmenting: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkError moves a video into the terminal error state with a message.
func (s *Store) MarkError(ctx context.Context, id int64, message string) error {
	return s.execWithoutResultRetry(
		ctx,
		`UPDATE videos SET state = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StateError,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
}

// MarkCompleted finalizes a video: state, processed_at, and cleared error.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.execWithoutResultRetry(
		ctx,
		`UPDATE videos SET state = ?, error_message = NULL, processed_at = ?, updated_at = ? WHERE id = ?`,
		StateCompleted,
		now,
		now,
		id,
	)
}

// ResetForResubmit returns a terminal video to pending so it can run again.
func (s *Store) ResetForResubmit(ctx context.Context, id int64) error {
	video, err := s.RequireVideo(ctx, id)
	if err != nil {
		return err
	}
	if !video.State.IsTerminal() {
		return services.Wrap(services.ErrValidation, "", "reset",
			fmt.Sprintf("video %d is %s, only completed or error videos reset", id, video.State), nil)
	}
	video.State = StatePending
	video.ThumbnailState = ThumbnailPending
	video.ErrorMessage = ""
	video.ProcessedAt = nil
	return s.UpdateVideo(ctx, video)
}

// ListVideos returns videos filtered by state set, oldest first. No states
// means every video.
func (s *Store) ListVideos(ctx context.Context, states ...State) ([]*Video, error) {
	baseQuery := `SELECT ` + videoColumns + ` FROM videos`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// RemoveVideo deletes a video and everything hanging off it.
func (s *Store) RemoveVideo(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountByState returns per-state video counts for daemon status reporting.
func (s *Store) CountByState(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM videos GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[State(state)] = count
	}
	return counts, rows.Err()
}

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		id             int64
		title          sql.NullString
		sourceURL      sql.NullString
		sourceKind     sql.NullString
		stateStr       string
		assetPath      sql.NullString
		thumbnailPath  sql.NullString
		thumbnailState sql.NullString
		duration       sql.NullFloat64
		format         sql.NullString
		sizeMB         sql.NullFloat64
		errorMessage   sql.NullString
		metadata       sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		processedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&sourceURL,
		&sourceKind,
		&stateStr,
		&assetPath,
		&thumbnailPath,
		&thumbnailState,
		&duration,
		&format,
		&sizeMB,
		&errorMessage,
		&metadata,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}

	video := &Video{
		ID:              id,
		Title:           title.String,
		SourceURL:       sourceURL.String,
		SourceKind:      SourceKind(sourceKind.String),
		State:           State(stateStr),
		AssetPath:       assetPath.String,
		ThumbnailPath:   thumbnailPath.String,
		ThumbnailState:  ThumbnailState(thumbnailState.String),
		DurationSeconds: duration.Float64,
		Format:          format.String,
		SizeMB:          sizeMB.Float64,
		ErrorMessage:    errorMessage.String,
		MetadataJSON:    metadata.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		video.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		video.UpdatedAt = updated
	}
	if processedRaw.Valid {
		if processed, err := parseTimeString(processedRaw.String); err == nil {
			video.ProcessedAt = &processed
		}
	}
	return video, nil
}
