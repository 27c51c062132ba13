package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"log/slog"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/services/ffmpeg"
	"lectern/internal/stage"
)

// ErrExtraction tags every failure raised by the extraction stage so callers
// can match the failing capability with errors.Is.
var ErrExtraction = errors.New("extraction failed")

// AudioExtractor converts a video asset into speech-ready audio.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, source, dest string) error
}

// Extractor produces the mono 16kHz WAV the transcription stage consumes.
type Extractor struct {
	cfg    *config.Config
	store  *records.Store
	logger *slog.Logger
	media  AudioExtractor
}

// NewExtractor constructs the extraction stage handler using default dependencies.
func NewExtractor(cfg *config.Config, store *records.Store, logger *slog.Logger) *Extractor {
	return NewExtractorWithDependencies(cfg, store, logger, ffmpeg.NewService(cfg.FFmpeg))
}

// NewExtractorWithDependencies allows injecting collaborators (used in tests).
func NewExtractorWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, media AudioExtractor) *Extractor {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "extractor"))
	}
	return &Extractor{cfg: cfg, store: store, logger: stageLogger, media: media}
}

// Prepare checks the downloaded asset exists. Every failure the stage
// returns carries ErrExtraction.
func (e *Extractor) Prepare(ctx context.Context, video *records.Video) error {
	return services.Tag(ErrExtraction, e.prepare(ctx, video))
}

// Execute converts the asset into the WAV the transcriber consumes.
func (e *Extractor) Execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	out, err := e.execute(ctx, video, artifact)
	if err != nil {
		return nil, services.Tag(ErrExtraction, err)
	}
	return out, nil
}

func (e *Extractor) prepare(_ context.Context, video *records.Video) error {
	asset := strings.TrimSpace(video.AssetPath)
	if asset == "" {
		return services.Wrap(services.ErrValidation, "extraction", "validate inputs",
			"video has no downloaded asset; run the download stage first", nil)
	}
	if _, err := os.Stat(asset); err != nil {
		return services.Wrap(services.ErrValidation, "extraction", "validate inputs",
			fmt.Sprintf("asset %s is not readable", asset), err)
	}
	return nil
}

func (e *Extractor) execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	logger := logging.WithContext(ctx, e.logger)

	source := video.AssetPath
	if artifact.AssetPath != "" {
		source = artifact.AssetPath
	}
	dest := filepath.Join(e.cfg.AudioDir(), fmt.Sprintf("audio_%d.wav", video.ID))
	if err := e.media.ExtractAudio(ctx, source, dest); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extraction", "extract audio", "ffmpeg audio extraction failed", err)
	}

	logger.Info("audio extracted", logging.String("audio_path", dest))
	result := *artifact
	result.AssetPath = source
	result.AudioPath = dest
	return &result, nil
}

func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	const name = "extractor"
	if e.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if e.media == nil {
		return stage.Unhealthy(name, "ffmpeg service unavailable")
	}
	binary := strings.TrimSpace(e.cfg.FFmpeg.Binary)
	if binary == "" {
		return stage.Unhealthy(name, "ffmpeg binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg binary %q not found", binary))
	}
	return stage.Healthy(name)
}
