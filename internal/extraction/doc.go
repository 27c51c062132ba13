// Package extraction pulls a mono 16kHz WAV track out of a downloaded video
// with ffmpeg, sized for speech recognition.
package extraction
