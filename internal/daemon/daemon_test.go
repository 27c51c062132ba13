package daemon_test

import (
	"context"
	"testing"

	"lectern/internal/cleanup"
	"lectern/internal/daemon"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/records"
	"lectern/internal/testsupport"
)

func newTestDaemon(t *testing.T) (*daemon.Daemon, *records.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	orch, err := pipeline.New(cfg, store, logger)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	sweeper := cleanup.NewSweeper(cfg, logger)
	d, err := daemon.New(cfg, store, logger, orch, sweeper, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store
}

func TestStartStopLifecycle(t *testing.T) {
	d, _ := newTestDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("status should report running")
	}
	if status.PID == 0 {
		t.Fatal("status should report a PID")
	}
	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("status should report stopped")
	}
	// Restart after a clean stop works.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop()
}

func TestStatusCountsVideosAndStages(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	testsupport.NewVideo(t, store, "One", "https://example.com/1", records.SourceRemote)
	testsupport.NewVideo(t, store, "Two", "https://example.com/2", records.SourceRemote)

	status := d.Status(ctx)
	if status.VideoCounts[records.StatePending] != 2 {
		t.Fatalf("pending count = %d, want 2", status.VideoCounts[records.StatePending])
	}
	if len(status.StageHealth) != 6 {
		t.Fatalf("stage health entries = %d, want 6", len(status.StageHealth))
	}
	if status.DBPath == "" || status.LockPath == "" {
		t.Fatal("status should carry db and lock paths")
	}
	if status.DiskFreeMB <= 0 {
		t.Fatalf("expected free-space measurement, got %v", status.DiskFreeMB)
	}
}

func TestDescribeVideoBundlesArtifacts(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	if err := store.UpsertTranscript(ctx, &records.Transcript{VideoID: video.ID, Content: "words"}); err != nil {
		t.Fatalf("UpsertTranscript: %v", err)
	}
	if err := store.ReplaceSegments(ctx, video.ID, []*records.Segment{
		{VideoID: video.ID, Position: 1, Title: "Intro", StartSeconds: 0, EndSeconds: 30},
	}); err != nil {
		t.Fatalf("ReplaceSegments: %v", err)
	}

	detail, err := d.DescribeVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("DescribeVideo: %v", err)
	}
	if detail.Transcript == nil || detail.Transcript.Content != "words" {
		t.Fatalf("transcript = %+v", detail.Transcript)
	}
	if len(detail.Segments) != 1 || detail.Segments[0].Title != "Intro" {
		t.Fatalf("segments = %+v", detail.Segments)
	}
	if detail.Summary != nil {
		t.Fatal("summary should be nil when none stored")
	}
}

func TestCleanRunsSweep(t *testing.T) {
	d, _ := newTestDaemon(t)
	result, err := d.Clean(context.Background())
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if result.DeletedFiles != 0 {
		t.Fatalf("expected no deletions on a fresh tree, got %d", result.DeletedFiles)
	}
}
