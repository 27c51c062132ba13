// Package thumbnail captures a representative frame from a downloaded video.
// It runs as a side branch of the pipeline: the capture point is a fraction
// of the video duration, and a failed capture never sinks the run.
package thumbnail
