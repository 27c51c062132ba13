package thumbnail

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

// ErrThumbnail tags every failure raised by the thumbnail stage so callers
// can match the failing capability with errors.Is.
var ErrThumbnail = errors.New("thumbnail failed")

// FrameCapturer grabs a single frame from a video asset.
type FrameCapturer interface {
	CaptureFrame(ctx context.Context, source, dest string, atSec float64, width int) error
}

// Thumbnailer captures the representative frame for a whole video. It runs
// on its own branch next to the audio chain and never blocks it.
type Thumbnailer struct {
	cfg    *config.Config
	store  *records.Store
	logger *slog.Logger
	media  FrameCapturer
}

// NewThumbnailer constructs the thumbnail stage handler using default dependencies.
func NewThumbnailer(cfg *config.Config, store *records.Store, logger *slog.Logger) *Thumbnailer {
	return NewThumbnailerWithDependencies(cfg, store, logger, ffmpeg.NewService(cfg.FFmpeg))
}

// NewThumbnailerWithDependencies allows injecting collaborators (used in tests).
func NewThumbnailerWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, media FrameCapturer) *Thumbnailer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "thumbnailer"))
	}
	return &Thumbnailer{cfg: cfg, store: store, logger: stageLogger, media: media}
}

// Prepare checks the asset exists. Every failure the stage returns carries
// ErrThumbnail.
func (t *Thumbnailer) Prepare(ctx context.Context, video *records.Video) error {
	return services.Tag(ErrThumbnail, t.prepare(ctx, video))
}

// Execute captures the representative frame for the video.
func (t *Thumbnailer) Execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	out, err := t.execute(ctx, video, artifact)
	if err != nil {
		return nil, services.Tag(ErrThumbnail, err)
	}
	return out, nil
}

func (t *Thumbnailer) prepare(ctx context.Context, video *records.Video) error {
	asset := strings.TrimSpace(video.AssetPath)
	if asset == "" {
		return services.Wrap(services.ErrValidation, "thumbnail", "validate inputs",
			"video has no downloaded asset; run the download stage first", nil)
	}
	if _, err := os.Stat(asset); err != nil {
		return services.Wrap(services.ErrValidation, "thumbnail", "validate inputs",
			fmt.Sprintf("asset %s is not readable", asset), err)
	}
	return nil
}

func (t *Thumbnailer) execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	logger := logging.WithContext(ctx, t.logger)

	source := video.AssetPath
	if artifact.AssetPath != "" {
		source = artifact.AssetPath
	}
	duration := artifact.DurationSeconds
	if duration <= 0 {
		duration = video.DurationSeconds
	}
	atSec := duration * t.cfg.Thumbnail.OffsetFraction

	dest := filepath.Join(t.cfg.ThumbnailsDir(), fmt.Sprintf("thumb_%d.jpg", video.ID))
	if err := t.media.CaptureFrame(ctx, source, dest, atSec, t.cfg.Thumbnail.Width); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "thumbnail", "capture frame", "ffmpeg frame capture failed", err)
	}

	logger.Info("thumbnail captured",
		logging.String("thumbnail_path", dest),
		logging.Float64("at_seconds", atSec),
	)
	result := *artifact
	result.ThumbnailPath = dest
	return &result, nil
}

func (t *Thumbnailer) HealthCheck(ctx context.Context) stage.Health {
	const name = "thumbnailer"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if t.media == nil {
		return stage.Unhealthy(name, "ffmpeg service unavailable")
	}
	binary := strings.TrimSpace(t.cfg.FFmpeg.Binary)
	if binary == "" {
		return stage.Unhealthy(name, "ffmpeg binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg binary %q not found", binary))
	}
	return stage.Healthy(name)
}
