package segmentation

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

// ErrSegmentation tags every failure raised by the segmentation stage so
// callers can match the failing capability with errors.Is.
var ErrSegmentation = errors.New("segmentation failed")

// ClipCutter cuts segment clips and captures their preview frames.
type ClipCutter interface {
	CutSegment(ctx context.Context, source, dest string, startSec, endSec float64) error
	CaptureFrame(ctx context.Context, source, dest string, atSec float64, width int) error
}

// Segmenter materializes the analysis stage's segment plan as clip files.
// A bad span fails that one segment and the run keeps cutting the rest.
type Segmenter struct {
	cfg    *config.Config
	store  *records.Store
	logger *slog.Logger
	media  ClipCutter
}

// NewSegmenter constructs the segmentation stage handler using default dependencies.
func NewSegmenter(cfg *config.Config, store *records.Store, logger *slog.Logger) *Segmenter {
	return NewSegmenterWithDependencies(cfg, store, logger, ffmpeg.NewService(cfg.FFmpeg))
}

// NewSegmenterWithDependencies allows injecting collaborators (used in tests).
func NewSegmenterWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, media ClipCutter) *Segmenter {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "segmenter"))
	}
	return &Segmenter{cfg: cfg, store: store, logger: stageLogger, media: media}
}

// Prepare checks the asset and the segment plan exist. Every failure the
// stage returns carries ErrSegmentation.
func (s *Segmenter) Prepare(ctx context.Context, video *records.Video) error {
	return services.Tag(ErrSegmentation, s.prepare(ctx, video))
}

// Execute cuts the planned segments out of the source asset.
func (s *Segmenter) Execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	out, err := s.execute(ctx, video, artifact)
	if err != nil {
		return nil, services.Tag(ErrSegmentation, err)
	}
	return out, nil
}

func (s *Segmenter) prepare(ctx context.Context, video *records.Video) error {
	asset := strings.TrimSpace(video.AssetPath)
	if asset == "" {
		return services.Wrap(services.ErrValidation, "segmentation", "validate inputs",
			"video has no downloaded asset", nil)
	}
	if _, err := os.Stat(asset); err != nil {
		return services.Wrap(services.ErrValidation, "segmentation", "validate inputs",
			fmt.Sprintf("asset %s is not readable", asset), err)
	}
	segments, err := s.store.ListSegments(ctx, video.ID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return services.Wrap(services.ErrValidation, "segmentation", "validate inputs",
			"no segments identified for video; run the analysis stage first", nil)
	}
	return nil
}

func (s *Segmenter) execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	logger := logging.WithContext(ctx, s.logger)

	source := video.AssetPath
	if artifact.AssetPath != "" {
		source = artifact.AssetPath
	}
	segments, err := s.store.ListSegments(ctx, video.ID)
	if err != nil {
		return nil, err
	}

	var cut, failed int
	for _, segment := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.cutOne(ctx, source, video, segment); err != nil {
			failed++
			logger.Warn("segment cut failed",
				logging.Int("position", segment.Position),
				logging.String("title", segment.Title),
				logging.Error(err),
			)
			s.logSegmentFailure(ctx, video.ID, segment, err)
			continue
		}
		cut++
	}

	// Per-segment failures never fail the stage; each one already has an
	// error entry in the stage log.
	logger.Info("segments cut",
		logging.Int("cut", cut),
		logging.Int("failed", failed),
	)
	passthrough := *artifact
	return &passthrough, nil
}

func (s *Segmenter) cutOne(ctx context.Context, source string, video *records.Video, segment *records.Segment) error {
	base := fmt.Sprintf("segment_%d_%d", video.ID, segment.Position)
	clipPath := filepath.Join(s.cfg.SegmentsDir(), base+".mp4")
	thumbPath := filepath.Join(s.cfg.SegmentsDir(), base+".jpg")

	if err := s.media.CutSegment(ctx, source, clipPath, segment.StartSeconds, segment.EndSeconds); err != nil {
		return fmt.Errorf("cut clip: %w", err)
	}
	midpoint := segment.StartSeconds + (segment.EndSeconds-segment.StartSeconds)/2
	if err := s.media.CaptureFrame(ctx, source, thumbPath, midpoint, s.cfg.Thumbnail.Width); err != nil {
		// A clip without a preview frame is still publishable.
		thumbPath = ""
	}
	return s.store.UpdateSegmentFiles(ctx, segment.ID, clipPath, thumbPath)
}

func (s *Segmenter) logSegmentFailure(ctx context.Context, videoID int64, segment *records.Segment, err error) {
	entry := &records.StageLogEntry{
		VideoID:     videoID,
		Stage:       "segmentation",
		Outcome:     records.OutcomeError,
		Message:     fmt.Sprintf("segment %d (%s) failed", segment.Position, segment.Title),
		ErrorDetail: err.Error(),
	}
	if logErr := s.store.AppendStageLog(ctx, entry); logErr != nil {
		logging.WithContext(ctx, s.logger).Warn("stage log write failed", logging.Error(logErr))
	}
}

func (s *Segmenter) HealthCheck(ctx context.Context) stage.Health {
	const name = "segmenter"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if s.media == nil {
		return stage.Unhealthy(name, "ffmpeg service unavailable")
	}
	binary := strings.TrimSpace(s.cfg.FFmpeg.Binary)
	if binary == "" {
		return stage.Unhealthy(name, "ffmpeg binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg binary %q not found", binary))
	}
	return stage.Healthy(name)
}
