package testsupport

import (
	"context"
	"testing"

	"lectern/internal/config"
	"lectern/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewVideo creates a new video record for tests using the provided store.
func NewVideo(t testing.TB, store *records.Store, title, sourceURL string, kind records.SourceKind) *records.Video {
	t.Helper()

	video, err := store.NewVideo(context.Background(), title, sourceURL, kind)
	if err != nil {
		t.Fatalf("store.NewVideo: %v", err)
	}
	return video
}
