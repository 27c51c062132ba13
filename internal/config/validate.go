package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for invalid or inconsistent values.
// All problems are reported together rather than one at a time.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		problems = append(problems, "paths.media_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}

	switch c.Transcriber.Mode {
	case "local", "api":
	default:
		problems = append(problems, fmt.Sprintf("transcriber.mode must be \"local\" or \"api\", got %q", c.Transcriber.Mode))
	}

	if c.Analysis.MinSegments < 1 {
		problems = append(problems, "analysis.min_segments must be at least 1")
	}
	if c.Analysis.MaxSegments < c.Analysis.MinSegments {
		problems = append(problems, "analysis.max_segments must be >= analysis.min_segments")
	}
	if c.Analysis.TranscriptCharLimit < 1 {
		problems = append(problems, "analysis.transcript_char_limit must be positive")
	}

	if c.Thumbnail.OffsetFraction < 0 || c.Thumbnail.OffsetFraction > 1 {
		problems = append(problems, "thumbnail.offset_fraction must be between 0 and 1")
	}
	if c.Thumbnail.Width < 1 {
		problems = append(problems, "thumbnail.width must be positive")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, "llm.temperature must be between 0 and 2")
	}

	problems = append(problems, validateRetry("retry.download", c.Retry.Download)...)
	problems = append(problems, validateRetry("retry.extraction", c.Retry.Extraction)...)
	problems = append(problems, validateRetry("retry.thumbnail", c.Retry.Thumbnail)...)
	problems = append(problems, validateRetry("retry.transcription", c.Retry.Transcription)...)
	problems = append(problems, validateRetry("retry.analysis", c.Retry.Analysis)...)
	problems = append(problems, validateRetry("retry.segmentation", c.Retry.Segmentation)...)

	if c.Workflow.QueuePollInterval < 1 {
		problems = append(problems, "workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval < 1 {
		problems = append(problems, "workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval < 1 {
		problems = append(problems, "workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.WorkerCount < 1 {
		problems = append(problems, "workflow.worker_count must be at least 1")
	}

	if c.Cleanup.Enabled {
		if c.Cleanup.MaxAgeHours < 1 {
			problems = append(problems, "cleanup.max_age_hours must be positive")
		}
		if c.Cleanup.IntervalHours < 1 {
			problems = append(problems, "cleanup.interval_hours must be positive")
		}
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateRetry(section string, policy RetryPolicy) []string {
	var problems []string
	if policy.MaxAttempts < 1 {
		problems = append(problems, section+".max_attempts must be at least 1")
	}
	if policy.BaseDelaySeconds < 0 {
		problems = append(problems, section+".base_delay_seconds must not be negative")
	}
	return problems
}
