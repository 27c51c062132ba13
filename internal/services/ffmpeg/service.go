package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"lectern/internal/config"
)

// Service wraps ffmpeg and ffprobe invocations for the media stages.
type Service struct {
	ffmpegBinary  string
	ffprobeBinary string
	segmentPreset string
	segmentCRF    int

	commandRunner func(ctx context.Context, name string, args ...string) error
	probeRunner   func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates an ffmpeg service with the given configuration.
func NewService(cfg config.FFmpeg) *Service {
	svc := &Service{
		ffmpegBinary:  strings.TrimSpace(cfg.Binary),
		ffprobeBinary: strings.TrimSpace(cfg.FFprobeBinary),
		segmentPreset: strings.TrimSpace(cfg.SegmentPreset),
		segmentCRF:    cfg.SegmentCRF,
	}
	if svc.ffmpegBinary == "" {
		svc.ffmpegBinary = "ffmpeg"
	}
	if svc.ffprobeBinary == "" {
		svc.ffprobeBinary = "ffprobe"
	}
	if svc.segmentPreset == "" {
		svc.segmentPreset = "medium"
	}
	if svc.segmentCRF <= 0 {
		svc.segmentCRF = 23
	}
	return svc
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// WithProbeRunner sets a custom output-capturing runner (for testing).
func (s *Service) WithProbeRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.probeRunner = runner
}

// ExtractAudio extracts the audio stream of a video as mono 16kHz WAV,
// the input format speech recognition expects.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if source == "" {
		return fmt.Errorf("extract audio: source path required")
	}
	if dest == "" {
		return fmt.Errorf("extract audio: destination path required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract audio: ensure destination dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg extract: %w", err)
	}
	return nil
}

// CutSegment re-encodes the span [startSec, endSec) of a video into dest as an
// MP4 ready for standalone publishing.
func (s *Service) CutSegment(ctx context.Context, source, dest string, startSec, endSec float64) error {
	if source == "" {
		return fmt.Errorf("cut segment: source path required")
	}
	if dest == "" {
		return fmt.Errorf("cut segment: destination path required")
	}
	duration := endSec - startSec
	if startSec < 0 || duration <= 0 {
		return fmt.Errorf("cut segment: invalid span %.3f-%.3f", startSec, endSec)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("cut segment: ensure destination dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(startSec),
		"-i", source,
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-preset", s.segmentPreset,
		"-crf", strconv.Itoa(s.segmentCRF),
		"-c:a", "aac",
		"-movflags", "+faststart",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg cut segment: %w", err)
	}
	return nil
}

// CaptureFrame writes a single JPEG frame taken at atSec, scaled to width
// while preserving the aspect ratio.
func (s *Service) CaptureFrame(ctx context.Context, source, dest string, atSec float64, width int) error {
	if source == "" {
		return fmt.Errorf("capture frame: source path required")
	}
	if dest == "" {
		return fmt.Errorf("capture frame: destination path required")
	}
	if atSec < 0 {
		atSec = 0
	}
	if width <= 0 {
		width = 1280
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("capture frame: ensure destination dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(atSec),
		"-i", source,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		"-q:v", "2",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg capture frame: %w", err)
	}
	return nil
}

// ProbeResult describes a media file as reported by ffprobe.
type ProbeResult struct {
	DurationSeconds float64
	FormatName      string
	SizeBytes       int64
}

// Probe inspects a media file with ffprobe.
func (s *Service) Probe(ctx context.Context, source string) (ProbeResult, error) {
	var result ProbeResult
	if source == "" {
		return result, fmt.Errorf("probe: source path required")
	}
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration,format_name,size",
		"-of", "json",
		source,
	}
	output, err := s.runCapture(ctx, s.ffprobeBinary, args...)
	if err != nil {
		return result, fmt.Errorf("ffprobe: %w", err)
	}
	var payload struct {
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
			Size       string `json:"size"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return result, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	if payload.Format.Duration != "" {
		if duration, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
			result.DurationSeconds = duration
		}
	}
	if payload.Format.Size != "" {
		if size, err := strconv.ParseInt(payload.Format.Size, 10, 64); err == nil {
			result.SizeBytes = size
		}
	}
	result.FormatName = payload.Format.FormatName
	if result.DurationSeconds <= 0 {
		return result, fmt.Errorf("ffprobe: no duration reported for %s", source)
	}
	return result, nil
}

// Version reports the installed ffmpeg version for health checks.
func (s *Service) Version(ctx context.Context) (string, error) {
	output, err := s.runCapture(ctx, s.ffmpegBinary, "-version")
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if line == "" {
		return "", fmt.Errorf("ffmpeg reported no version")
	}
	return line, nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (s *Service) runCapture(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.probeRunner != nil {
		return s.probeRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
