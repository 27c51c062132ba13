// Package llm talks to an OpenAI-compatible chat-completions endpoint and
// decodes the JSON payloads the pipeline asks models to produce.
package llm
