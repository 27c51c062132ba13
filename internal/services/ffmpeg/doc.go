// Package ffmpeg shells out to ffmpeg and ffprobe for audio extraction,
// segment cutting, thumbnail capture, and media inspection.
package ffmpeg
