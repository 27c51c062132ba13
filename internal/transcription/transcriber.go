package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/services/whisper"
	"lectern/internal/stage"
)

// ErrTranscription tags every failure raised by the transcription stage so
// callers can match the failing capability with errors.Is.
var ErrTranscription = errors.New("transcription failed")

// Transcriber turns extracted audio into a persisted transcript.
type Transcriber struct {
	cfg     *config.Config
	store   *records.Store
	logger  *slog.Logger
	backend whisper.Transcriber
}

// NewTranscriber constructs the transcription stage handler using default dependencies.
func NewTranscriber(cfg *config.Config, store *records.Store, logger *slog.Logger) (*Transcriber, error) {
	backend, err := whisper.New(cfg.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	return NewTranscriberWithDependencies(cfg, store, logger, backend), nil
}

// NewTranscriberWithDependencies allows injecting collaborators (used in tests).
func NewTranscriberWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, backend whisper.Transcriber) *Transcriber {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "transcriber"))
	}
	return &Transcriber{cfg: cfg, store: store, logger: stageLogger, backend: backend}
}

// Prepare checks the extracted audio exists. Every failure the stage returns
// carries ErrTranscription.
func (t *Transcriber) Prepare(ctx context.Context, video *records.Video) error {
	return services.Tag(ErrTranscription, t.prepare(ctx, video))
}

// Execute runs the whisper backend and stores the transcript.
func (t *Transcriber) Execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	out, err := t.execute(ctx, video, artifact)
	if err != nil {
		return nil, services.Tag(ErrTranscription, err)
	}
	return out, nil
}

func (t *Transcriber) prepare(_ context.Context, video *records.Video) error {
	audio := t.audioPath(video, nil)
	if audio == "" {
		return services.Wrap(services.ErrValidation, "transcription", "validate inputs",
			"no extracted audio for video; run the extraction stage first", nil)
	}
	if _, err := os.Stat(audio); err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "validate inputs",
			fmt.Sprintf("audio file %s is not readable", audio), err)
	}
	return nil
}

func (t *Transcriber) execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	logger := logging.WithContext(ctx, t.logger)

	audio := t.audioPath(video, artifact)
	result, err := t.backend.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}

	transcript := &records.Transcript{
		VideoID:      video.ID,
		Content:      result.Text,
		Language:     result.Language,
		Confidence:   result.Confidence,
		SegmentsJSON: result.SegmentsJSON,
		Model:        result.Model,
	}
	if err := t.store.UpsertTranscript(ctx, transcript); err != nil {
		return nil, err
	}

	logger.Info("transcript stored",
		logging.Int("characters", len(result.Text)),
		logging.String("language", result.Language),
		logging.Float64("confidence", result.Confidence),
		logging.String("model", result.Model),
	)
	passthrough := *artifact
	passthrough.AudioPath = audio
	return &passthrough, nil
}

// audioPath resolves the audio file, preferring the artifact from the
// extraction stage and falling back to the conventional location so a
// re-triggered run still finds it.
func (t *Transcriber) audioPath(video *records.Video, artifact *stage.Artifact) string {
	if artifact != nil && strings.TrimSpace(artifact.AudioPath) != "" {
		return artifact.AudioPath
	}
	return filepath.Join(t.cfg.AudioDir(), fmt.Sprintf("audio_%d.wav", video.ID))
}

func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcriber"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if t.backend == nil {
		return stage.Unhealthy(name, "transcription backend unavailable")
	}
	mode := strings.ToLower(strings.TrimSpace(t.cfg.Transcriber.Mode))
	if mode == "api" && strings.TrimSpace(t.cfg.Transcriber.APIKey) == "" {
		return stage.Unhealthy(name, "transcription api key not configured")
	}
	return stage.Healthy(name)
}
