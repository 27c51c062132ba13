package pipeline

import (
	"lectern/internal/config"
	"lectern/internal/records"
)

// Stage names double as task identifiers and stage log labels.
const (
	StageDownload      = "download"
	StageExtraction    = "extraction"
	StageTranscription = "transcription"
	StageAnalysis      = "analysis"
	StageSegmentation  = "segmentation"
	StageThumbnail     = "thumbnail"
)

// stageDef describes one node of the processing graph. The audio chain
// advances the video state; the thumbnail branch runs beside it and only
// settles the thumbnail marker.
type stageDef struct {
	name string
	// state the video enters while this stage runs; empty for branch
	// stages that do not move the main chain.
	state records.State
	// successors enqueued when the stage completes. The join into
	// segmentation is handled separately through ClaimSegmenting.
	successors []string
	retry      func(*config.Config) config.RetryPolicy
	// joinsAfter marks stages whose completion can release the
	// segmentation join barrier.
	joinsAfter bool
}

var stageDefs = map[string]stageDef{
	StageDownload: {
		name:       StageDownload,
		state:      records.StateDownloading,
		successors: []string{StageExtraction, StageThumbnail},
		retry:      func(c *config.Config) config.RetryPolicy { return c.Retry.Download },
	},
	StageExtraction: {
		name:       StageExtraction,
		state:      records.StateProcessing,
		successors: []string{StageTranscription},
		retry:      func(c *config.Config) config.RetryPolicy { return c.Retry.Extraction },
	},
	StageTranscription: {
		name:       StageTranscription,
		state:      records.StateTranscribing,
		successors: []string{StageAnalysis},
		retry:      func(c *config.Config) config.RetryPolicy { return c.Retry.Transcription },
	},
	StageAnalysis: {
		name:       StageAnalysis,
		state:      records.StateAnalyzing,
		retry:      func(c *config.Config) config.RetryPolicy { return c.Retry.Analysis },
		joinsAfter: true,
	},
	StageThumbnail: {
		name:       StageThumbnail,
		retry:      func(c *config.Config) config.RetryPolicy { return c.Retry.Thumbnail },
		joinsAfter: true,
	},
	StageSegmentation: {
		name:  StageSegmentation,
		state: records.StateSegmenting,
		retry: func(c *config.Config) config.RetryPolicy { return c.Retry.Segmentation },
	},
}
