package whisper

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"lectern/internal/config"
)

// Result contains the outcome of a transcription.
type Result struct {
	// Text is the plain text transcription.
	Text string
	// Language is the detected or requested language as an ISO 639-1 code.
	Language string
	// Confidence is the model's mean per-segment confidence in [0, 1],
	// or 0 when the backend does not report one.
	Confidence float64
	// SegmentsJSON preserves the backend's time-aligned segment payload.
	SegmentsJSON string
	// Model names the model that produced the transcript.
	Model string
}

// Transcriber converts an extracted audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
	// Describe reports the backend and model for logging and health output.
	Describe() string
}

// New selects a transcription backend from the configuration.
func New(cfg config.Transcriber) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "local":
		return newLocalTranscriber(cfg), nil
	case "api":
		return newAPITranscriber(cfg)
	default:
		return nil, fmt.Errorf("whisper: unknown transcriber mode %q", cfg.Mode)
	}
}

// normalizeLanguage reduces a language hint ("es", "spa", "es-MX", "Spanish")
// to an ISO 639-1 code, or returns "" when the hint is empty or unparseable.
func normalizeLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	tag, err := language.Parse(value)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
