package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/services"
)

// Metadata describes a remote video before it is downloaded.
type Metadata struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration"`
	Format          string  `json:"format"`
	Extension       string  `json:"ext"`
	Uploader        string  `json:"uploader"`
	FilesizeBytes   int64   `json:"filesize_approx"`
}

// Result captures the outcome of a completed download.
type Result struct {
	Path   string
	SizeMB float64
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary    string
	format    string
	rateLimit string
	timeout   time.Duration
	exec      Executor
}

// New constructs a yt-dlp client from the downloader configuration.
func New(cfg config.Downloader, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{
		binary:    binary,
		format:    strings.TrimSpace(cfg.Format),
		rateLimit: strings.TrimSpace(cfg.RateLimit),
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		exec:      commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Probe fetches metadata for a remote video without downloading it.
func (c *Client) Probe(ctx context.Context, sourceURL string) (Metadata, error) {
	var meta Metadata
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return meta, services.Wrap(services.ErrValidation, "download", "probe", "source url required", nil)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var payload strings.Builder
	args := []string{"--dump-json", "--no-download", "--no-playlist", sourceURL}
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		payload.WriteString(line)
		payload.WriteString("\n")
	})
	if err != nil {
		return meta, services.Wrap(services.ErrExternalTool, "download", "probe", "yt-dlp metadata fetch failed", err)
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload.String())), &meta); err != nil {
		return meta, services.Wrap(services.ErrExternalTool, "download", "probe", "parse yt-dlp metadata", err)
	}
	if meta.Title == "" {
		return meta, services.Wrap(services.ErrExternalTool, "download", "probe", "yt-dlp metadata missing title", nil)
	}
	return meta, nil
}

// Download fetches a remote video into destDir and returns the final path.
func (c *Client) Download(ctx context.Context, sourceURL, destDir string) (Result, error) {
	var result Result
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return result, services.Wrap(services.ErrValidation, "download", "fetch", "source url required", nil)
	}
	if destDir == "" {
		return result, services.Wrap(services.ErrValidation, "download", "fetch", "destination directory required", nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "download", "fetch", "create destination directory", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--print", "after_move:filepath",
		"-o", filepath.Join(destDir, "%(title)s [%(id)s].%(ext)s"),
	}
	if c.format != "" {
		args = append(args, "-f", c.format)
	}
	if c.rateLimit != "" {
		args = append(args, "--limit-rate", c.rateLimit)
	}
	args = append(args, sourceURL)

	var finalPath string
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			finalPath = trimmed
		}
	})
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "download", "fetch", "yt-dlp download failed", err)
	}
	if finalPath == "" {
		return result, services.Wrap(services.ErrExternalTool, "download", "fetch", "yt-dlp reported no output file", nil)
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "download", "fetch", fmt.Sprintf("downloaded file missing at %s", finalPath), err)
	}
	result.Path = finalPath
	result.SizeMB = float64(info.Size()) / (1024 * 1024)
	return result, nil
}

// Version reports the installed yt-dlp version for health checks.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var version string
	err := c.exec.Run(ctx, c.binary, []string{"--version"}, func(line string) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			version = trimmed
		}
	})
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", errors.New("yt-dlp reported no version")
	}
	return version, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}
