// Package analysis runs the transcript through a chat-completion model to
// produce a structured summary and candidate segments for clip extraction.
//
// The model response is parsed defensively: segment counts are clamped to
// the configured range, time spans are validated against the video duration,
// and malformed entries are dropped rather than failing the stage.
package analysis
