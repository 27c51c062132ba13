package segmentation_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/segmentation"
	"lectern/internal/services"
	"lectern/internal/stage"
	"lectern/internal/testsupport"
)

type fakeCutter struct {
	cutCalls    []string
	frameCalls  []string
	failOnClip  map[string]error
	failAllCuts bool
	failFrames  bool
}

func (f *fakeCutter) CutSegment(_ context.Context, _, dest string, _, _ float64) error {
	f.cutCalls = append(f.cutCalls, dest)
	if f.failAllCuts {
		return errors.New("encode error")
	}
	if err, ok := f.failOnClip[filepath.Base(dest)]; ok {
		return err
	}
	return nil
}

func (f *fakeCutter) CaptureFrame(_ context.Context, _, dest string, _ float64, _ int) error {
	f.frameCalls = append(f.frameCalls, dest)
	if f.failFrames {
		return errors.New("no frame")
	}
	return nil
}

func seedVideo(t *testing.T, cfg *config.Config, store *records.Store, spans [][2]float64) *records.Video {
	t.Helper()
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	assetPath := filepath.Join(cfg.VideosDir(), "asset.mp4")
	testsupport.WriteFile(t, assetPath, 1024)
	video.AssetPath = assetPath
	if err := store.UpdateVideo(context.Background(), video); err != nil {
		t.Fatal(err)
	}

	segments := make([]*records.Segment, 0, len(spans))
	for i, span := range spans {
		segments = append(segments, &records.Segment{
			VideoID:      video.ID,
			Title:        fmt.Sprintf("part %d", i+1),
			StartSeconds: span[0],
			EndSeconds:   span[1],
			Position:     i + 1,
			Relevance:    5,
		})
	}
	if len(segments) > 0 {
		if err := store.ReplaceSegments(context.Background(), video.ID, segments); err != nil {
			t.Fatal(err)
		}
	}
	return video
}

func TestExecuteCutsAllSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := seedVideo(t, cfg, store, [][2]float64{{0, 60}, {60, 240}})

	cutter := &fakeCutter{}
	handler := segmentation.NewSegmenterWithDependencies(cfg, store, logging.NewNop(), cutter)

	if err := handler.Prepare(context.Background(), video); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{AssetPath: video.AssetPath}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(cutter.cutCalls) != 2 {
		t.Fatalf("expected 2 clips, got %v", cutter.cutCalls)
	}

	stored, err := store.ListSegments(context.Background(), video.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, segment := range stored {
		wantClip := filepath.Join(cfg.SegmentsDir(), fmt.Sprintf("segment_%d_%d.mp4", video.ID, segment.Position))
		if segment.ClipPath != wantClip {
			t.Fatalf("unexpected clip path %q, want %q", segment.ClipPath, wantClip)
		}
		if !strings.HasSuffix(segment.ThumbnailPath, ".jpg") {
			t.Fatalf("expected thumbnail path, got %q", segment.ThumbnailPath)
		}
	}
}

func TestExecuteContinuesPastFailedSegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := seedVideo(t, cfg, store, [][2]float64{{0, 60}, {60, 240}})

	cutter := &fakeCutter{failOnClip: map[string]error{
		fmt.Sprintf("segment_%d_1.mp4", video.ID): errors.New("bad span"),
	}}
	handler := segmentation.NewSegmenterWithDependencies(cfg, store, logging.NewNop(), cutter)

	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{AssetPath: video.AssetPath}); err != nil {
		t.Fatalf("Execute should tolerate one failure: %v", err)
	}

	stored, err := store.ListSegments(context.Background(), video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].ClipPath != "" {
		t.Fatalf("failed segment should have no clip path, got %q", stored[0].ClipPath)
	}
	if stored[1].ClipPath == "" {
		t.Fatal("surviving segment should have a clip path")
	}

	logs, err := store.RecentLogs(context.Background(), video.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	var foundFailure bool
	for _, entry := range logs {
		if entry.Stage == "segmentation" && entry.Outcome == records.OutcomeError {
			foundFailure = true
		}
	}
	if !foundFailure {
		t.Fatal("expected a stage log entry for the failed segment")
	}
}

func TestExecuteSucceedsWhenEverySegmentFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := seedVideo(t, cfg, store, [][2]float64{{0, 60}, {60, 240}})

	handler := segmentation.NewSegmenterWithDependencies(cfg, store, logging.NewNop(), &fakeCutter{failAllCuts: true})
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatalf("per-segment failures should not fail the stage: %v", err)
	}

	logs, err := store.RecentLogs(context.Background(), video.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	var failures int
	for _, entry := range logs {
		if entry.Stage == "segmentation" && entry.Outcome == records.OutcomeError {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("expected 2 error log entries, got %d", failures)
	}
}

func TestExecuteToleratesMissingPreviewFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := seedVideo(t, cfg, store, [][2]float64{{0, 60}})

	handler := segmentation.NewSegmenterWithDependencies(cfg, store, logging.NewNop(), &fakeCutter{failFrames: true})
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	stored, err := store.ListSegments(context.Background(), video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].ClipPath == "" || stored[0].ThumbnailPath != "" {
		t.Fatalf("expected clip without thumbnail, got %+v", stored[0])
	}
}

func TestPrepareRequiresSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := seedVideo(t, cfg, store, nil)

	handler := segmentation.NewSegmenterWithDependencies(cfg, store, logging.NewNop(), &fakeCutter{})
	err := handler.Prepare(context.Background(), video)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, segmentation.ErrSegmentation) {
		t.Fatalf("expected stage sentinel, got %v", err)
	}
}
