package ffmpeg_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
	"lectern/internal/services/ffmpeg"
)

type call struct {
	name string
	args []string
}

func newService(t *testing.T, calls *[]call) *ffmpeg.Service {
	t.Helper()
	svc := ffmpeg.NewService(config.FFmpeg{
		Binary:        "ffmpeg",
		FFprobeBinary: "ffprobe",
		SegmentPreset: "fast",
		SegmentCRF:    21,
	})
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		*calls = append(*calls, call{name: name, args: args})
		return nil
	})
	return svc
}

func argsJoined(c call) string {
	return strings.Join(c.args, " ")
}

func TestExtractAudioBuildsMono16kArgs(t *testing.T) {
	var calls []call
	svc := newService(t, &calls)
	dest := filepath.Join(t.TempDir(), "audio", "42.wav")

	if err := svc.ExtractAudio(context.Background(), "/media/input.mp4", dest); err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	if len(calls) != 1 || calls[0].name != "ffmpeg" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	joined := argsJoined(calls[0])
	for _, want := range []string{"-i /media/input.mp4", "-ac 1", "-ar 16000", "-c:a pcm_s16le", dest} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in args %v", want, calls[0].args)
		}
	}
}

func TestCutSegmentUsesConfiguredEncodeSettings(t *testing.T) {
	var calls []call
	svc := newService(t, &calls)
	dest := filepath.Join(t.TempDir(), "segment_42_1.mp4")

	if err := svc.CutSegment(context.Background(), "/media/input.mp4", dest, 30, 95.5); err != nil {
		t.Fatalf("CutSegment: %v", err)
	}
	joined := argsJoined(calls[0])
	for _, want := range []string{"-ss 30.000", "-t 65.500", "-c:v libx264", "-preset fast", "-crf 21", "-c:a aac", "-movflags +faststart"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in args %v", want, calls[0].args)
		}
	}
}

func TestCutSegmentRejectsInvalidSpan(t *testing.T) {
	var calls []call
	svc := newService(t, &calls)
	if err := svc.CutSegment(context.Background(), "/media/in.mp4", filepath.Join(t.TempDir(), "out.mp4"), 90, 60); err == nil {
		t.Fatal("expected error for backwards span")
	}
	if len(calls) != 0 {
		t.Fatalf("expected no invocation, got %+v", calls)
	}
}

func TestCaptureFrameScalesToWidth(t *testing.T) {
	var calls []call
	svc := newService(t, &calls)
	dest := filepath.Join(t.TempDir(), "thumb.jpg")

	if err := svc.CaptureFrame(context.Background(), "/media/input.mp4", dest, 120.25, 640); err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	joined := argsJoined(calls[0])
	for _, want := range []string{"-ss 120.250", "-frames:v 1", "scale=640:-2"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in args %v", want, calls[0].args)
		}
	}
}

func TestProbeParsesFormatJSON(t *testing.T) {
	svc := ffmpeg.NewService(config.FFmpeg{})
	svc.WithProbeRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffprobe" {
			t.Fatalf("unexpected binary %q", name)
		}
		return []byte(`{"format":{"duration":"1825.500000","format_name":"mov,mp4,m4a","size":"734003200"}}`), nil
	})

	result, err := svc.Probe(context.Background(), "/media/input.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.DurationSeconds != 1825.5 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds)
	}
	if result.SizeBytes != 734003200 {
		t.Fatalf("unexpected size %d", result.SizeBytes)
	}
	if result.FormatName != "mov,mp4,m4a" {
		t.Fatalf("unexpected format %q", result.FormatName)
	}
}

func TestProbeRequiresDuration(t *testing.T) {
	svc := ffmpeg.NewService(config.FFmpeg{})
	svc.WithProbeRunner(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte(`{"format":{"format_name":"mp4"}}`), nil
	})
	if _, err := svc.Probe(context.Background(), "/media/input.mp4"); err == nil {
		t.Fatal("expected error when ffprobe reports no duration")
	}
}

func TestProbeWrapsRunnerFailure(t *testing.T) {
	svc := ffmpeg.NewService(config.FFmpeg{})
	svc.WithProbeRunner(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return nil, errors.New("no such file")
	})
	if _, err := svc.Probe(context.Background(), "/media/missing.mp4"); err == nil {
		t.Fatal("expected probe failure")
	}
}
