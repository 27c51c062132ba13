package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lectern/internal/analysis"
	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/services/llm"
	"lectern/internal/stage"
	"lectern/internal/testsupport"
)

type fakeAnalyzer struct {
	summary       llm.SummaryResult
	summaryErr    error
	plans         []llm.SegmentPlan
	plansErr      error
	gotTranscript string
	gotAligned    string
	gotMin        int
	gotMax        int
}

func (f *fakeAnalyzer) Summarize(_ context.Context, transcript string) (llm.SummaryResult, error) {
	f.gotTranscript = transcript
	return f.summary, f.summaryErr
}

func (f *fakeAnalyzer) IdentifySegments(_ context.Context, transcript string, minSegments, maxSegments int) ([]llm.SegmentPlan, error) {
	f.gotAligned = transcript
	f.gotMin, f.gotMax = minSegments, maxSegments
	return f.plans, f.plansErr
}

func (f *fakeAnalyzer) Model() string { return "gpt-test" }

func seedTranscript(t *testing.T, store *records.Store, videoID int64, content string) {
	t.Helper()
	err := store.UpsertTranscript(context.Background(), &records.Transcript{
		VideoID: videoID,
		Content: content,
		Model:   "small",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func seedTimedTranscript(t *testing.T, store *records.Store, videoID int64, content, segmentsJSON string) {
	t.Helper()
	err := store.UpsertTranscript(context.Background(), &records.Transcript{
		VideoID:      videoID,
		Content:      content,
		SegmentsJSON: segmentsJSON,
		Model:        "small",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestExecuteStoresSummaryAndSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Analysis.MinSegments = 2
	cfg.Analysis.MaxSegments = 3
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	video.DurationSeconds = 600
	seedTranscript(t, store, video.ID, "hola a todos hoy hablamos de compiladores")

	analyzer := &fakeAnalyzer{
		summary: llm.SummaryResult{
			Summary:     "An overview of compiler construction.",
			Themes:      []string{"parsing", "codegen"},
			Conclusions: []string{"tables win"},
			KeyPoints:   []string{"lex first"},
		},
		plans: []llm.SegmentPlan{
			{Title: "Codegen", StartSeconds: 300, EndSeconds: 420, Relevance: 9, Category: "detail"},
			{Title: "Intro", StartSeconds: 0, EndSeconds: 60, Relevance: 5, Category: "overview"},
			{Title: "Parsing", StartSeconds: 60, EndSeconds: 240, Relevance: 8, Category: "detail"},
			{Title: "Outro", StartSeconds: 540, EndSeconds: 600, Relevance: 2, Category: "overview"},
		},
	}
	handler := analysis.NewHandlerWithDependencies(cfg, store, logging.NewNop(), analyzer)

	if err := handler.Prepare(context.Background(), video); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if analyzer.gotMin != 2 || analyzer.gotMax != 3 {
		t.Fatalf("expected clamp bounds forwarded, got %d/%d", analyzer.gotMin, analyzer.gotMax)
	}

	summary, err := store.GetSummary(context.Background(), video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary == nil || summary.Body != "An overview of compiler construction." {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.WordCount != 5 || summary.Model != "gpt-test" {
		t.Fatalf("summary metadata wrong: %+v", summary)
	}
	if !strings.Contains(summary.ThemesJSON, "parsing") {
		t.Fatalf("themes not encoded: %q", summary.ThemesJSON)
	}

	segments, err := store.ListSegments(context.Background(), video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected max 3 segments, got %d", len(segments))
	}
	// Highest relevance first, positions ascending.
	if segments[0].Title != "Codegen" || segments[0].Position != 1 {
		t.Fatalf("unexpected first segment %+v", segments[0])
	}
	if segments[1].Title != "Parsing" || segments[2].Title != "Intro" {
		t.Fatalf("unexpected ordering: %q, %q", segments[1].Title, segments[2].Title)
	}
}

func TestExecuteTruncatesLongTranscripts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Analysis.TranscriptCharLimit = 10
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	seedTranscript(t, store, video.ID, "abcdefghijKLMNOP")

	analyzer := &fakeAnalyzer{
		summary: llm.SummaryResult{Summary: "s"},
		plans:   []llm.SegmentPlan{{Title: "a", StartSeconds: 0, EndSeconds: 1, Relevance: 5}},
	}
	handler := analysis.NewHandlerWithDependencies(cfg, store, logging.NewNop(), analyzer)
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatal(err)
	}
	if analyzer.gotTranscript != "abcdefghij" {
		t.Fatalf("expected truncated transcript, got %q", analyzer.gotTranscript)
	}
}

func TestExecuteAppendsWhenReplaceDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Analysis.ReplaceSegments = false
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	seedTranscript(t, store, video.ID, "transcript")

	analyzer := &fakeAnalyzer{
		summary: llm.SummaryResult{Summary: "s"},
		plans:   []llm.SegmentPlan{{Title: "first", StartSeconds: 0, EndSeconds: 10, Relevance: 5}},
	}
	handler := analysis.NewHandlerWithDependencies(cfg, store, logging.NewNop(), analyzer)
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatal(err)
	}
	analyzer.plans = []llm.SegmentPlan{{Title: "second", StartSeconds: 10, EndSeconds: 20, Relevance: 4}}
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatal(err)
	}

	segments, err := store.ListSegments(context.Background(), video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected appended segments, got %d", len(segments))
	}
	if segments[1].Title != "second" || segments[1].Position != 2 {
		t.Fatalf("append did not offset positions: %+v", segments[1])
	}
}

func TestPrepareRequiresTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)

	handler := analysis.NewHandlerWithDependencies(cfg, store, logging.NewNop(), &fakeAnalyzer{})
	if err := handler.Prepare(context.Background(), video); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteWrapsLLMFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	seedTranscript(t, store, video.ID, "transcript")

	handler := analysis.NewHandlerWithDependencies(cfg, store, logging.NewNop(),
		&fakeAnalyzer{summaryErr: errors.New("rate limited")})
	_, err := handler.Execute(context.Background(), video, &stage.Artifact{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !errors.Is(err, analysis.ErrAnalysis) {
		t.Fatalf("expected stage sentinel, got %v", err)
	}
}

func TestExecuteFeedsTimedTranscriptToSegmentIdentification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	seedTimedTranscript(t, store, video.ID,
		"hola a todos hoy hablamos de compiladores",
		`[{"start":0,"end":4,"text":"hola a todos"},{"start":65.4,"end":70,"text":"hoy hablamos de compiladores"}]`)

	analyzer := &fakeAnalyzer{summary: llm.SummaryResult{Summary: "ok"}}
	handler := analysis.NewHandlerWithDependencies(cfg, store, logging.NewNop(), analyzer)
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatal(err)
	}

	want := "[00:00] hola a todos\n[01:05] hoy hablamos de compiladores\n"
	if analyzer.gotAligned != want {
		t.Fatalf("segment identification input = %q, want %q", analyzer.gotAligned, want)
	}
	if analyzer.gotTranscript != "hola a todos hoy hablamos de compiladores" {
		t.Fatalf("summary should still see the plain transcript, got %q", analyzer.gotTranscript)
	}
}

func TestExecuteFallsBackToPlainTranscriptWithoutTimings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lecture", "https://example.com/v", records.SourceRemote)
	seedTranscript(t, store, video.ID, "sin marcas de tiempo")

	analyzer := &fakeAnalyzer{summary: llm.SummaryResult{Summary: "ok"}}
	handler := analysis.NewHandlerWithDependencies(cfg, store, logging.NewNop(), analyzer)
	if _, err := handler.Execute(context.Background(), video, &stage.Artifact{}); err != nil {
		t.Fatal(err)
	}
	if analyzer.gotAligned != "sin marcas de tiempo" {
		t.Fatalf("expected plain transcript fallback, got %q", analyzer.gotAligned)
	}
}
