// Package segmentation cuts the segments identified by analysis into
// standalone clips with ffmpeg and captures a thumbnail per clip.
package segmentation
