package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"lectern/internal/services"
)

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = NewComponentLogger(logger, "pipeline")
	logger.Info("stage finished", String(FieldStage, "download"), Int(FieldAttempt, 2))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, " INFO pipeline: stage finished") {
		t.Fatalf("unexpected line shape: %q", line)
	}
	if !strings.Contains(line, "stage=download") || !strings.Contains(line, "attempt=2") {
		t.Fatalf("expected attrs in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("submitted", String("title", "intro to go"))
	if !strings.Contains(buf.String(), `title="intro to go"`) {
		t.Fatalf("expected quoted value: %q", buf.String())
	}
}

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info line suppressed: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("expected warn line emitted: %q", out)
	}
}

func TestJSONFormatRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello")
	out := buf.String()
	for _, key := range []string{`"ts":`, `"level":"info"`, `"msg":"hello"`} {
		if !strings.Contains(out, key) {
			t.Fatalf("expected %s in output: %q", key, out)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAttachesPipelineFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithVideoID(context.Background(), 42)
	ctx = services.WithRunID(ctx, "run-abc")
	ctx = services.WithStage(ctx, "transcribing")

	WithContext(ctx, logger).Info("progress")

	line := buf.String()
	for _, want := range []string{"video_id=42", "run_id=run-abc", "stage=transcribing"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in line: %q", want, line)
		}
	}
}

func TestNoopHandlerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected noop logger to be disabled at every level")
	}
}
