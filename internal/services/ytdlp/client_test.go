package ytdlp_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
	"lectern/internal/services"
	"lectern/internal/services/ytdlp"
)

type fakeExecutor struct {
	lastBinary string
	lastArgs   []string
	stdout     []string
	err        error
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onStdout func(string)) error {
	f.lastBinary = binary
	f.lastArgs = args
	if f.err != nil {
		return f.err
	}
	for _, line := range f.stdout {
		onStdout(line)
	}
	return nil
}

func newClient(t *testing.T, exec *fakeExecutor) *ytdlp.Client {
	t.Helper()
	client, err := ytdlp.New(config.Downloader{
		Binary:    "yt-dlp",
		Format:    "bestvideo+bestaudio/best",
		RateLimit: "4M",
	}, ytdlp.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestProbeParsesMetadata(t *testing.T) {
	exec := &fakeExecutor{stdout: []string{
		`{"id":"abc123","title":"Intro to Parsers","duration":1825.5,"ext":"mp4","uploader":"compilers channel"}`,
	}}
	client := newClient(t, exec)

	meta, err := client.Probe(context.Background(), "https://example.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if meta.Title != "Intro to Parsers" {
		t.Fatalf("unexpected title %q", meta.Title)
	}
	if meta.DurationSeconds != 1825.5 {
		t.Fatalf("unexpected duration %v", meta.DurationSeconds)
	}
	if exec.lastBinary != "yt-dlp" {
		t.Fatalf("unexpected binary %q", exec.lastBinary)
	}
	joined := strings.Join(exec.lastArgs, " ")
	if !strings.Contains(joined, "--dump-json") || !strings.Contains(joined, "--no-download") {
		t.Fatalf("expected metadata-only args, got %v", exec.lastArgs)
	}
}

func TestProbeRequiresURL(t *testing.T) {
	client := newClient(t, &fakeExecutor{})
	_, err := client.Probe(context.Background(), "  ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDownloadReturnsFinalPathAndSize(t *testing.T) {
	destDir := t.TempDir()
	finalPath := filepath.Join(destDir, "Intro to Parsers [abc123].mp4")
	if err := os.WriteFile(finalPath, make([]byte, 2*1024*1024), 0o644); err != nil {
		t.Fatal(err)
	}
	exec := &fakeExecutor{stdout: []string{finalPath}}
	client := newClient(t, exec)

	result, err := client.Download(context.Background(), "https://example.com/watch?v=abc123", destDir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result.Path != finalPath {
		t.Fatalf("unexpected path %q", result.Path)
	}
	if result.SizeMB < 1.9 || result.SizeMB > 2.1 {
		t.Fatalf("unexpected size %v", result.SizeMB)
	}
	joined := strings.Join(exec.lastArgs, " ")
	if !strings.Contains(joined, "-f bestvideo+bestaudio/best") {
		t.Fatalf("expected format flag, got %v", exec.lastArgs)
	}
	if !strings.Contains(joined, "--limit-rate 4M") {
		t.Fatalf("expected rate limit flag, got %v", exec.lastArgs)
	}
}

func TestDownloadWrapsToolFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("network unreachable")}
	client := newClient(t, exec)

	_, err := client.Download(context.Background(), "https://example.com/v", t.TempDir())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestDownloadFailsWhenNoFileReported(t *testing.T) {
	client := newClient(t, &fakeExecutor{stdout: []string{""}})
	_, err := client.Download(context.Background(), "https://example.com/v", t.TempDir())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	client := newClient(t, &fakeExecutor{stdout: []string{"2025.08.20"}})
	version, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "2025.08.20" {
		t.Fatalf("unexpected version %q", version)
	}
}
