package ipc

import "time"

// VideoSummary is the wire form of a video record.
type VideoSummary struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	SourceURL       string    `json:"source_url"`
	SourceKind      string    `json:"source_kind"`
	State           string    `json:"state"`
	ThumbnailState  string    `json:"thumbnail_state"`
	ThumbnailPath   string    `json:"thumbnail_path,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	SizeMB          float64   `json:"size_mb"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RunView is the wire form of a pipeline run.
type RunView struct {
	ID           string     `json:"id"`
	VideoID      int64      `json:"video_id"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TaskView is the wire form of a queued stage task.
type TaskView struct {
	ID        int64     `json:"id"`
	Stage     string    `json:"stage"`
	Attempt   int       `json:"attempt"`
	Status    string    `json:"status"`
	RunAfter  time.Time `json:"run_after"`
	LastError string    `json:"last_error,omitempty"`
}

// SegmentView is the wire form of an identified segment.
type SegmentView struct {
	Position      int     `json:"position"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	StartSeconds  float64 `json:"start_seconds"`
	EndSeconds    float64 `json:"end_seconds"`
	Relevance     int     `json:"relevance"`
	Category      string  `json:"category,omitempty"`
	ClipPath      string  `json:"clip_path,omitempty"`
	ThumbnailPath string  `json:"thumbnail_path,omitempty"`
}

// SummaryView is the wire form of an analysis summary.
type SummaryView struct {
	Body            string `json:"body"`
	ThemesJSON      string `json:"themes_json,omitempty"`
	ConclusionsJSON string `json:"conclusions_json,omitempty"`
	KeyPointsJSON   string `json:"key_points_json,omitempty"`
	WordCount       int    `json:"word_count"`
	Model           string `json:"model,omitempty"`
}

// StageLogView is the wire form of one audit trail entry.
type StageLogView struct {
	Stage       string    `json:"stage"`
	Outcome     string    `json:"outcome"`
	Message     string    `json:"message,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// StageHealth describes readiness of one pipeline stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// SubmitRequest registers a remote video for processing.
type SubmitRequest struct {
	URL string `json:"url"`
}

// SubmitResponse reports the created video and run.
type SubmitResponse struct {
	Video VideoSummary `json:"video"`
	RunID string       `json:"run_id"`
}

// AddVideoRequest registers a local file for processing.
type AddVideoRequest struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// AddVideoResponse reports the created video and run.
type AddVideoResponse struct {
	Video VideoSummary `json:"video"`
	RunID string       `json:"run_id"`
}

// ResubmitRequest reruns the full pipeline for a finished video.
type ResubmitRequest struct {
	VideoID int64 `json:"video_id"`
}

// ResubmitResponse reports the new run.
type ResubmitResponse struct {
	RunID string `json:"run_id"`
}

// TriggerRequest starts a partial run for a video.
type TriggerRequest struct {
	VideoID int64 `json:"video_id"`
}

// TriggerResponse reports the new run.
type TriggerResponse struct {
	RunID string `json:"run_id"`
}

// RunStatusRequest fetches a run with its task rows.
type RunStatusRequest struct {
	RunID string `json:"run_id"`
}

// RunStatusResponse carries the run and its tasks.
type RunStatusResponse struct {
	Run   RunView    `json:"run"`
	Tasks []TaskView `json:"tasks"`
}

// VideoListRequest filters the video listing by state names.
type VideoListRequest struct {
	States []string `json:"states"`
}

// VideoListResponse contains matching videos.
type VideoListResponse struct {
	Videos []VideoSummary `json:"videos"`
}

// VideoDescribeRequest fetches a single video with its artifacts.
type VideoDescribeRequest struct {
	VideoID int64 `json:"video_id"`
}

// VideoDescribeResponse bundles a video and everything produced for it.
type VideoDescribeResponse struct {
	Video      VideoSummary  `json:"video"`
	Transcript string        `json:"transcript,omitempty"`
	Summary    *SummaryView  `json:"summary,omitempty"`
	Segments   []SegmentView `json:"segments,omitempty"`
}

// VideoRemoveRequest deletes a video record.
type VideoRemoveRequest struct {
	VideoID int64 `json:"video_id"`
}

// VideoRemoveResponse reports whether a row was deleted.
type VideoRemoveResponse struct {
	Removed bool `json:"removed"`
}

// VideoLogsRequest fetches the audit trail for a video.
type VideoLogsRequest struct {
	VideoID int64 `json:"video_id"`
	Limit   int   `json:"limit"`
}

// VideoLogsResponse contains audit trail entries, newest first.
type VideoLogsResponse struct {
	Entries []StageLogView `json:"entries"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is a combined daemon and pipeline snapshot.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	DBPath      string         `json:"db_path"`
	LockPath    string         `json:"lock_path"`
	VideoCounts map[string]int `json:"video_counts"`
	TaskCounts  map[string]int `json:"task_counts"`
	StageHealth []StageHealth  `json:"stage_health"`
	DiskFreeMB  float64        `json:"disk_free_mb"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// CleanRequest runs one cleanup sweep immediately.
type CleanRequest struct{}

// CleanResponse reports what the sweep removed.
type CleanResponse struct {
	DeletedFiles int     `json:"deleted_files"`
	FreedMB      float64 `json:"freed_mb"`
	DiskFreeMB   float64 `json:"disk_free_mb"`
}

// LogTailRequest fetches daemon log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
