// Package transcription turns extracted audio into a transcript using
// whisper, either the local CLI or an OpenAI-compatible endpoint depending
// on configuration.
package transcription
