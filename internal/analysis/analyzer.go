package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"log/slog"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/services/llm"
	"lectern/internal/stage"
)

// ErrAnalysis tags every failure raised by the analysis stage so callers can
// match the failing capability with errors.Is.
var ErrAnalysis = errors.New("analysis failed")

// Analyzer describes the LLM operations the analysis stage needs.
type Analyzer interface {
	Summarize(ctx context.Context, transcript string) (llm.SummaryResult, error)
	IdentifySegments(ctx context.Context, transcript string, minSegments, maxSegments int) ([]llm.SegmentPlan, error)
	Model() string
}

// Handler runs LLM analysis over a stored transcript: an executive summary
// plus the list of clip-worthy segments.
type Handler struct {
	cfg    *config.Config
	store  *records.Store
	logger *slog.Logger
	llm    Analyzer
}

// NewHandler constructs the analysis stage handler using default dependencies.
func NewHandler(cfg *config.Config, store *records.Store, logger *slog.Logger) *Handler {
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	return NewHandlerWithDependencies(cfg, store, logger, client)
}

// NewHandlerWithDependencies allows injecting collaborators (used in tests).
func NewHandlerWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, analyzer Analyzer) *Handler {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "analyzer"))
	}
	return &Handler{cfg: cfg, store: store, logger: stageLogger, llm: analyzer}
}

// Prepare checks a transcript is available. Every failure the stage returns
// carries ErrAnalysis.
func (h *Handler) Prepare(ctx context.Context, video *records.Video) error {
	return services.Tag(ErrAnalysis, h.prepare(ctx, video))
}

// Execute summarizes the transcript and stores the identified segments.
func (h *Handler) Execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	out, err := h.execute(ctx, video, artifact)
	if err != nil {
		return nil, services.Tag(ErrAnalysis, err)
	}
	return out, nil
}

func (h *Handler) prepare(ctx context.Context, video *records.Video) error {
	transcript, err := h.store.GetTranscript(ctx, video.ID)
	if err != nil {
		return err
	}
	if transcript == nil || strings.TrimSpace(transcript.Content) == "" {
		return services.Wrap(services.ErrValidation, "analysis", "validate inputs",
			"no transcript for video; run the transcription stage first", nil)
	}
	return nil
}

func (h *Handler) execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	logger := logging.WithContext(ctx, h.logger)

	transcript, err := h.store.GetTranscript(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	if transcript == nil {
		return nil, services.Wrap(services.ErrValidation, "analysis", "load transcript", "transcript disappeared", nil)
	}
	content := h.truncateTranscript(transcript.Content)

	summary, err := h.llm.Summarize(ctx, content)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "analysis", "summarize", "summary generation failed", err)
	}
	if err := h.storeSummary(ctx, video.ID, summary); err != nil {
		return nil, err
	}

	plans, err := h.llm.IdentifySegments(ctx, h.alignedTranscript(transcript), h.cfg.Analysis.MinSegments, h.cfg.Analysis.MaxSegments)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "analysis", "identify segments", "segment identification failed", err)
	}
	segments := h.planSegments(video, plans)
	if h.cfg.Analysis.ReplaceSegments {
		err = h.store.ReplaceSegments(ctx, video.ID, segments)
	} else {
		err = h.store.AppendSegments(ctx, video.ID, segments)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("analysis stored",
		logging.Int("summary_words", wordCount(summary.Summary)),
		logging.Int("segments", len(segments)),
		logging.String("model", h.llm.Model()),
	)
	passthrough := *artifact
	return &passthrough, nil
}

func (h *Handler) storeSummary(ctx context.Context, videoID int64, summary llm.SummaryResult) error {
	themes, err := json.Marshal(summary.Themes)
	if err != nil {
		return fmt.Errorf("analysis: encode themes: %w", err)
	}
	conclusions, err := json.Marshal(summary.Conclusions)
	if err != nil {
		return fmt.Errorf("analysis: encode conclusions: %w", err)
	}
	keyPoints, err := json.Marshal(summary.KeyPoints)
	if err != nil {
		return fmt.Errorf("analysis: encode key points: %w", err)
	}
	return h.store.UpsertSummary(ctx, &records.Summary{
		VideoID:         videoID,
		Body:            summary.Summary,
		ThemesJSON:      string(themes),
		ConclusionsJSON: string(conclusions),
		KeyPointsJSON:   string(keyPoints),
		WordCount:       wordCount(summary.Summary),
		Model:           h.llm.Model(),
	})
}

// planSegments orders the model's candidates by relevance, keeps at most the
// configured maximum, clips spans to the video duration, and assigns
// ascending positions.
func (h *Handler) planSegments(video *records.Video, plans []llm.SegmentPlan) []*records.Segment {
	sorted := make([]llm.SegmentPlan, len(plans))
	copy(sorted, plans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Relevance > sorted[j].Relevance
	})
	if max := h.cfg.Analysis.MaxSegments; max > 0 && len(sorted) > max {
		sorted = sorted[:max]
	}

	segments := make([]*records.Segment, 0, len(sorted))
	for i, plan := range sorted {
		start, end := plan.StartSeconds, plan.EndSeconds
		if video.DurationSeconds > 0 && end > video.DurationSeconds {
			end = video.DurationSeconds
		}
		if end <= start {
			continue
		}
		segments = append(segments, &records.Segment{
			VideoID:      video.ID,
			Title:        plan.Title,
			Description:  plan.Description,
			StartSeconds: start,
			EndSeconds:   end,
			Position:     i + 1,
			Relevance:    plan.Relevance,
			Category:     plan.Category,
		})
	}
	return segments
}

type alignedSpan struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// alignedTranscript renders the transcriber's per-segment timings as one
// "[MM:SS] text" line per spoken span so the model can anchor segment offsets
// in seconds. Falls back to the plain transcript when no timings were stored.
func (h *Handler) alignedTranscript(transcript *records.Transcript) string {
	raw := strings.TrimSpace(transcript.SegmentsJSON)
	if raw == "" {
		return h.truncateTranscript(transcript.Content)
	}
	var spans []alignedSpan
	if err := json.Unmarshal([]byte(raw), &spans); err != nil {
		return h.truncateTranscript(transcript.Content)
	}
	var b strings.Builder
	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%02d:%02d] %s\n", int(span.Start)/60, int(span.Start)%60, text)
	}
	if b.Len() == 0 {
		return h.truncateTranscript(transcript.Content)
	}
	return h.truncateTranscript(b.String())
}

// truncateTranscript keeps request bodies inside the model's context window,
// cutting on a rune boundary.
func (h *Handler) truncateTranscript(content string) string {
	limit := h.cfg.Analysis.TranscriptCharLimit
	if limit <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	const name = "analyzer"
	if h.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if h.llm == nil {
		return stage.Unhealthy(name, "llm client unavailable")
	}
	if strings.TrimSpace(h.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy(name, "llm api key not configured")
	}
	return stage.Healthy(name)
}
