package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SummaryResult is the JSON payload the model returns for transcript analysis.
type SummaryResult struct {
	Summary     string   `json:"summary"`
	Themes      []string `json:"themes"`
	Conclusions []string `json:"conclusions"`
	KeyPoints   []string `json:"key_points"`
	Raw         string   `json:"-"`
}

// SegmentPlan is one clip-worthy span identified by the model.
type SegmentPlan struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Relevance    int     `json:"relevance"`
	Category     string  `json:"category"`
}

const summarySystemPrompt = `You are an assistant that analyzes educational video transcripts.
Respond with JSON only, using this exact shape:
{"summary": "...", "themes": ["..."], "conclusions": ["..."], "key_points": ["..."]}
The summary is an executive overview of 2-4 paragraphs. Themes, conclusions,
and key points are short phrases. Keep the language of the transcript.`

const segmentSystemPrompt = `You are an assistant that identifies the most valuable spans of an
educational video for publishing as standalone clips.
Respond with JSON only, using this exact shape:
{"segments": [{"title": "...", "description": "...", "start_seconds": 0,
"end_seconds": 0, "relevance": 1, "category": "..."}]}
Relevance is an integer from 1 (weak) to 10 (essential). Use the time-aligned
transcript to pick precise start and end offsets in seconds. Spans must not
overlap and each should stand on its own.`

// Summarize asks the model for an executive summary of a transcript.
func (c *Client) Summarize(ctx context.Context, transcript string) (SummaryResult, error) {
	var empty SummaryResult
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return empty, errors.New("llm summarize: transcript required")
	}
	content, err := c.CompleteJSON(ctx, summarySystemPrompt, transcript)
	if err != nil {
		return empty, err
	}
	var parsed SummaryResult
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("llm summarize: parse payload: %w", err)
	}
	parsed.Raw = content
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if parsed.Summary == "" {
		return empty, errors.New("llm summarize: model returned no summary")
	}
	return parsed, nil
}

// IdentifySegments asks the model for clip candidates. The prompt states the
// requested count range; the caller still clamps the result.
func (c *Client) IdentifySegments(ctx context.Context, transcript string, minSegments, maxSegments int) ([]SegmentPlan, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, errors.New("llm segments: transcript required")
	}
	userPrompt := fmt.Sprintf("Identify between %d and %d segments.\n\n%s", minSegments, maxSegments, transcript)
	content, err := c.CompleteJSON(ctx, segmentSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Segments []SegmentPlan `json:"segments"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("llm segments: parse payload: %w", err)
	}
	plans := make([]SegmentPlan, 0, len(parsed.Segments))
	for _, plan := range parsed.Segments {
		plan.Title = strings.TrimSpace(plan.Title)
		plan.Description = strings.TrimSpace(plan.Description)
		plan.Category = strings.TrimSpace(plan.Category)
		if plan.Title == "" || plan.EndSeconds <= plan.StartSeconds {
			continue
		}
		if plan.Relevance < 1 {
			plan.Relevance = 1
		}
		if plan.Relevance > 10 {
			plan.Relevance = 10
		}
		plans = append(plans, plan)
	}
	if len(plans) == 0 {
		return nil, errors.New("llm segments: model returned no usable segments")
	}
	return plans, nil
}
