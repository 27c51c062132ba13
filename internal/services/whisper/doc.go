// Package whisper provides speech recognition through either the local
// whisper CLI or an OpenAI-compatible transcription API.
package whisper
