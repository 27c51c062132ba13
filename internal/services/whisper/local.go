package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/services"
)

// localTranscriber shells out to the whisper CLI.
type localTranscriber struct {
	binary   string
	model    string
	language string
	timeout  time.Duration

	commandRunner func(ctx context.Context, name string, args ...string) error
}

func newLocalTranscriber(cfg config.Transcriber) *localTranscriber {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "whisper"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "base"
	}
	return &localTranscriber{
		binary:   binary,
		model:    model,
		language: normalizeLanguage(cfg.Language),
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (t *localTranscriber) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	t.commandRunner = runner
}

func (t *localTranscriber) Describe() string {
	return fmt.Sprintf("whisper local (%s)", t.model)
}

func (t *localTranscriber) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	var result Result
	if strings.TrimSpace(audioPath) == "" {
		return result, services.Wrap(services.ErrValidation, "transcription", "transcribe", "audio path required", nil)
	}

	outputDir := filepath.Dir(audioPath)
	args := []string{
		audioPath,
		"--model", t.model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
	}
	if t.language != "" {
		args = append(args, "--language", t.language)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := t.run(ctx, t.binary, args...); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "whisper failed", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	parsed, raw, err := loadWhisperPayload(jsonPath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "read whisper output", err)
	}

	result.Text = strings.TrimSpace(parsed.Text)
	if result.Text == "" {
		result.Text = joinSegmentText(parsed.Segments)
	}
	if result.Text == "" {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "whisper produced an empty transcript", nil)
	}
	result.Language = normalizeLanguage(parsed.Language)
	if result.Language == "" {
		result.Language = t.language
	}
	result.Confidence = meanSegmentConfidence(parsed.Segments)
	result.SegmentsJSON = raw
	result.Model = t.model
	return result, nil
}

func (t *localTranscriber) run(ctx context.Context, name string, args ...string) error {
	if t.commandRunner != nil {
		return t.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// whisperSegment is one time-aligned span of whisper JSON output.
type whisperSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogprob float64 `json:"avg_logprob"`
}

type whisperPayload struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

func loadWhisperPayload(jsonPath string) (whisperPayload, string, error) {
	var payload whisperPayload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return payload, "", err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, "", fmt.Errorf("parse whisper json: %w", err)
	}
	return payload, string(data), nil
}

func joinSegmentText(segments []whisperSegment) string {
	var parts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// meanSegmentConfidence maps whisper's average log-probabilities to [0, 1].
func meanSegmentConfidence(segments []whisperSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, seg := range segments {
		p := math.Exp(seg.AvgLogprob)
		if p > 1 {
			p = 1
		}
		sum += p
	}
	return sum / float64(len(segments))
}
