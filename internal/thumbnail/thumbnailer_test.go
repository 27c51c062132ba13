package thumbnail_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/stage"
	"lectern/internal/testsupport"
	"lectern/internal/thumbnail"
)

type fakeCapturer struct {
	source string
	dest   string
	atSec  float64
	width  int
	err    error
}

func (f *fakeCapturer) CaptureFrame(_ context.Context, source, dest string, atSec float64, width int) error {
	f.source = source
	f.dest = dest
	f.atSec = atSec
	f.width = width
	return f.err
}

func TestExecuteCapturesAtConfiguredOffset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Thumbnail.OffsetFraction = 0.25
	cfg.Thumbnail.Width = 640
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)

	assetPath := filepath.Join(cfg.VideosDir(), "asset.mp4")
	testsupport.WriteFile(t, assetPath, 1024)
	video.AssetPath = assetPath

	capturer := &fakeCapturer{}
	handler := thumbnail.NewThumbnailerWithDependencies(cfg, store, logging.NewNop(), capturer)

	if err := handler.Prepare(context.Background(), video); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	artifact, err := handler.Execute(context.Background(), video, &stage.Artifact{AssetPath: assetPath, DurationSeconds: 1200})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if capturer.atSec != 300 {
		t.Fatalf("expected capture at 300s, got %v", capturer.atSec)
	}
	if capturer.width != 640 {
		t.Fatalf("unexpected width %d", capturer.width)
	}
	if filepath.Dir(artifact.ThumbnailPath) != cfg.ThumbnailsDir() {
		t.Fatalf("thumbnail not in thumbnails dir: %q", artifact.ThumbnailPath)
	}
}

func TestExecuteFallsBackToVideoDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Thumbnail.OffsetFraction = 0.5
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	video.AssetPath = filepath.Join(cfg.VideosDir(), "asset.mp4")
	video.DurationSeconds = 600

	capturer := &fakeCapturer{}
	handler := thumbnail.NewThumbnailerWithDependencies(cfg, store, logging.NewNop(), capturer)

	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if capturer.atSec != 300 {
		t.Fatalf("expected capture at 300s, got %v", capturer.atSec)
	}
	if capturer.source != video.AssetPath {
		t.Fatalf("unexpected source %q", capturer.source)
	}
}

func TestExecuteWrapsCaptureFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	video.AssetPath = filepath.Join(cfg.VideosDir(), "asset.mp4")

	handler := thumbnail.NewThumbnailerWithDependencies(cfg, store, logging.NewNop(), &fakeCapturer{err: errors.New("no video stream")})
	_, err := handler.Execute(context.Background(), video, &stage.Artifact{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !errors.Is(err, thumbnail.ErrThumbnail) {
		t.Fatalf("expected stage sentinel, got %v", err)
	}
}
