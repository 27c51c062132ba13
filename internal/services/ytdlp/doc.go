// Package ytdlp shells out to yt-dlp for remote video metadata and downloads.
package ytdlp
