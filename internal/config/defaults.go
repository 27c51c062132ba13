package config

const (
	defaultStagingDir        = "~/.local/share/lectern/staging"
	defaultMediaDir          = "~/.local/share/lectern/media"
	defaultLogDir            = "~/.local/share/lectern/logs"
	defaultDownloaderBinary  = "yt-dlp"
	defaultDownloaderFormat  = "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	defaultDownloaderTimeout = 1800
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultSegmentPreset     = "medium"
	defaultSegmentCRF        = 23
	defaultTranscriberMode   = "local"
	defaultWhisperBinary     = "whisper"
	defaultWhisperModel      = "base"
	defaultWhisperAPIBase    = "https://api.openai.com/v1/audio/transcriptions"
	defaultWhisperAPIModel   = "whisper-1"
	defaultWhisperTimeout    = 1800
	defaultLLMBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel          = "gpt-4o-mini"
	defaultLLMTemperature    = 0.3
	defaultLLMMaxTokens      = 2000
	defaultLLMTimeout        = 120
	defaultMinSegments       = 3
	defaultMaxSegments       = 7
	defaultTranscriptLimit   = 8000
	defaultThumbnailOffset   = 0.10
	defaultThumbnailWidth    = 1280
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultWorkerCount       = 2
	defaultCleanupMaxAge     = 24
	defaultCleanupInterval   = 6
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogMaxSizeMB      = 50
	defaultLogMaxBackups     = 5
)

// Default returns a Config populated with repository defaults.
// The retry table mirrors the stage policy the orchestrator applies:
// three attempts everywhere, with backoff bases tuned to how expensive
// each external operation is to restart.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			MediaDir:   defaultMediaDir,
			LogDir:     defaultLogDir,
		},
		Downloader: Downloader{
			Binary:         defaultDownloaderBinary,
			Format:         defaultDownloaderFormat,
			TimeoutSeconds: defaultDownloaderTimeout,
		},
		FFmpeg: FFmpeg{
			Binary:        defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			SegmentPreset: defaultSegmentPreset,
			SegmentCRF:    defaultSegmentCRF,
		},
		Transcriber: Transcriber{
			Mode:           defaultTranscriberMode,
			Binary:         defaultWhisperBinary,
			Model:          defaultWhisperModel,
			APIBaseURL:     defaultWhisperAPIBase,
			APIModel:       defaultWhisperAPIModel,
			TimeoutSeconds: defaultWhisperTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Temperature:    defaultLLMTemperature,
			MaxTokens:      defaultLLMMaxTokens,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Analysis: Analysis{
			MinSegments:         defaultMinSegments,
			MaxSegments:         defaultMaxSegments,
			ReplaceSegments:     true,
			TranscriptCharLimit: defaultTranscriptLimit,
		},
		Thumbnail: Thumbnail{
			OffsetFraction: defaultThumbnailOffset,
			Width:          defaultThumbnailWidth,
		},
		Retry: Retry{
			Download:      RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 60},
			Extraction:    RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 60},
			Thumbnail:     RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 30},
			Transcription: RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 120},
			Analysis:      RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 180},
			Segmentation:  RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 120},
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			WorkerCount:        defaultWorkerCount,
		},
		Cleanup: Cleanup{
			Enabled:       true,
			MaxAgeHours:   defaultCleanupMaxAge,
			IntervalHours: defaultCleanupInterval,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Completion:     true,
			Errors:         true,
			Cleanup:        false,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
	}
}
