package services_test

import (
	"context"
	"testing"

	"lectern/internal/services"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()

	if _, ok := services.VideoIDFromContext(ctx); ok {
		t.Fatal("expected no video id on empty context")
	}

	ctx = services.WithVideoID(ctx, 7)
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithStage(ctx, "analyzing")
	ctx = services.WithRequestID(ctx, "req-9")

	if id, ok := services.VideoIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("video id round trip failed: %d %v", id, ok)
	}
	if run, ok := services.RunIDFromContext(ctx); !ok || run != "run-1" {
		t.Fatalf("run id round trip failed: %q %v", run, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "analyzing" {
		t.Fatalf("stage round trip failed: %q %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-9" {
		t.Fatalf("request id round trip failed: %q %v", rid, ok)
	}
}

func TestEmptyValuesAreNotStored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected empty stage to be dropped")
	}
	ctx = services.WithRunID(context.Background(), "")
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected empty run id to be dropped")
	}
}
