package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for working files and outputs.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	MediaDir   string `toml:"media_dir"`
	LogDir     string `toml:"log_dir"`
}

// Downloader contains configuration for the yt-dlp download adapter.
type Downloader struct {
	Binary         string `toml:"binary"`
	Format         string `toml:"format"`
	RateLimit      string `toml:"rate_limit"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// FFmpeg contains configuration for media tooling binaries and encode settings.
type FFmpeg struct {
	Binary        string `toml:"binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	SegmentPreset string `toml:"segment_preset"`
	SegmentCRF    int    `toml:"segment_crf"`
}

// Transcriber contains configuration for speech recognition.
// Mode "local" shells out to the whisper CLI; mode "api" calls an
// OpenAI-compatible transcription endpoint with a 25MB upload ceiling.
type Transcriber struct {
	Mode           string `toml:"mode"`
	Binary         string `toml:"binary"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	APIBaseURL     string `toml:"api_base_url"`
	APIKey         string `toml:"api_key"`
	APIModel       string `toml:"api_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains connection settings for the chat-completion analysis client.
type LLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Analysis contains configuration for summary and segment identification.
type Analysis struct {
	MinSegments int `toml:"min_segments"`
	MaxSegments int `toml:"max_segments"`
	// ReplaceSegments controls what a re-run of analysis does with segment
	// records from a previous run: true replaces them, false appends.
	ReplaceSegments     bool `toml:"replace_segments"`
	TranscriptCharLimit int  `toml:"transcript_char_limit"`
}

// Thumbnail contains configuration for full-video thumbnail capture.
type Thumbnail struct {
	// OffsetFraction positions the capture point as a fraction of the video
	// duration when no explicit timestamp is supplied.
	OffsetFraction float64 `toml:"offset_fraction"`
	Width          int     `toml:"width"`
}

// RetryPolicy is a per-stage attempt ceiling with a linear backoff base.
type RetryPolicy struct {
	MaxAttempts      int `toml:"max_attempts"`
	BaseDelaySeconds int `toml:"base_delay_seconds"`
}

// Retry contains the per-stage retry policies.
type Retry struct {
	Download      RetryPolicy `toml:"download"`
	Extraction    RetryPolicy `toml:"extraction"`
	Thumbnail     RetryPolicy `toml:"thumbnail"`
	Transcription RetryPolicy `toml:"transcription"`
	Analysis      RetryPolicy `toml:"analysis"`
	Segmentation  RetryPolicy `toml:"segmentation"`
}

// Workflow contains daemon timing and worker pool configuration.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	WorkerCount        int `toml:"worker_count"`
}

// Cleanup contains configuration for the temporary file maintenance sweep.
type Cleanup struct {
	Enabled       bool `toml:"enabled"`
	MaxAgeHours   int  `toml:"max_age_hours"`
	IntervalHours int  `toml:"interval_hours"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
	Cleanup        bool   `toml:"cleanup"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for Lectern.
//
// Configuration sections by subsystem:
//   - Paths: staging, media output, and log directories
//   - Downloader: yt-dlp binary and download options
//   - FFmpeg: media tool binaries and segment encode settings
//   - Transcriber: whisper local/API speech recognition
//   - LLM: chat-completion connection used by analysis
//   - Analysis: segment count clamps and re-run semantics
//   - Thumbnail: capture offset and size
//   - Retry: per-stage attempt ceilings and linear backoff bases
//   - Workflow: poll intervals, heartbeats, worker count
//   - Cleanup: temp file sweep age and schedule
//   - Notifications: ntfy push settings
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Downloader    Downloader    `toml:"downloader"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Transcriber   Transcriber   `toml:"transcriber"`
	LLM           LLM           `toml:"llm"`
	Analysis      Analysis      `toml:"analysis"`
	Thumbnail     Thumbnail     `toml:"thumbnail"`
	Retry         Retry         `toml:"retry"`
	Workflow      Workflow      `toml:"workflow"`
	Cleanup       Cleanup       `toml:"cleanup"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lectern/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lectern.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StagingDir,
		c.Paths.LogDir,
		c.Paths.MediaDir,
		c.VideosDir(),
		c.AudioDir(),
		c.ThumbnailsDir(),
		c.SegmentsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// VideosDir is where finished full-video assets land.
func (c *Config) VideosDir() string {
	return filepath.Join(c.Paths.MediaDir, "videos")
}

// AudioDir is where extracted audio tracks land.
func (c *Config) AudioDir() string {
	return filepath.Join(c.Paths.MediaDir, "audio")
}

// ThumbnailsDir is where full-video thumbnails land.
func (c *Config) ThumbnailsDir() string {
	return filepath.Join(c.Paths.MediaDir, "thumbnails")
}

// SegmentsDir is where clipped segments and their thumbnails land.
func (c *Config) SegmentsDir() string {
	return filepath.Join(c.Paths.MediaDir, "segments")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
