package extraction_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/extraction"
	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/stage"
	"lectern/internal/testsupport"
)

type fakeMedia struct {
	source string
	dest   string
	err    error
}

func (f *fakeMedia) ExtractAudio(_ context.Context, source, dest string) error {
	f.source = source
	f.dest = dest
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("wav"), 0o644)
}

func TestExecuteWritesAudioNextToLibrary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)

	assetPath := filepath.Join(cfg.VideosDir(), "asset.mp4")
	testsupport.WriteFile(t, assetPath, 1024)
	video.AssetPath = assetPath
	if err := store.UpdateVideo(context.Background(), video); err != nil {
		t.Fatal(err)
	}

	media := &fakeMedia{}
	handler := extraction.NewExtractorWithDependencies(cfg, store, logging.NewNop(), media)

	if err := handler.Prepare(context.Background(), video); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	artifact, err := handler.Execute(context.Background(), video, &stage.Artifact{AssetPath: assetPath})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if media.source != assetPath {
		t.Fatalf("unexpected extraction source %q", media.source)
	}
	if filepath.Dir(artifact.AudioPath) != cfg.AudioDir() {
		t.Fatalf("audio not in audio dir: %q", artifact.AudioPath)
	}
	if _, err := os.Stat(artifact.AudioPath); err != nil {
		t.Fatalf("expected audio file: %v", err)
	}
}

func TestPrepareRequiresAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)

	handler := extraction.NewExtractorWithDependencies(cfg, store, logging.NewNop(), &fakeMedia{})
	if err := handler.Prepare(context.Background(), video); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteWrapsFFmpegFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	video.AssetPath = filepath.Join(cfg.VideosDir(), "asset.mp4")

	handler := extraction.NewExtractorWithDependencies(cfg, store, logging.NewNop(), &fakeMedia{err: errors.New("corrupt stream")})
	_, err := handler.Execute(context.Background(), video, &stage.Artifact{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !errors.Is(err, extraction.ErrExtraction) {
		t.Fatalf("expected stage sentinel, got %v", err)
	}
}
