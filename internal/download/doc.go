// Package download implements the first pipeline stage. Remote videos are
// fetched with yt-dlp into the staging directory; local files are copied in
// and probed for duration and size so later stages see the same shape either
// way.
package download
