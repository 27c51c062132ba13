package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"log/slog"

	"lectern/internal/config"
	"lectern/internal/fileutil"
	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/services/ffmpeg"
	"lectern/internal/services/ytdlp"
	"lectern/internal/stage"
)

// ErrDownload tags every failure raised by the download stage so callers can
// match the failing capability with errors.Is.
var ErrDownload = errors.New("download failed")

// Fetcher describes the yt-dlp operations the downloader needs.
type Fetcher interface {
	Probe(ctx context.Context, sourceURL string) (ytdlp.Metadata, error)
	Download(ctx context.Context, sourceURL, destDir string) (ytdlp.Result, error)
	Version(ctx context.Context) (string, error)
}

// Prober inspects downloaded and locally ingested files.
type Prober interface {
	Probe(ctx context.Context, source string) (ffmpeg.ProbeResult, error)
}

// Downloader acquires the source video, remote or local, into the library.
type Downloader struct {
	cfg     *config.Config
	store   *records.Store
	logger  *slog.Logger
	fetcher Fetcher
	prober  Prober
}

// NewDownloader constructs the download stage handler using default dependencies.
func NewDownloader(cfg *config.Config, store *records.Store, logger *slog.Logger) (*Downloader, error) {
	fetcher, err := ytdlp.New(cfg.Downloader)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return NewDownloaderWithDependencies(cfg, store, logger, fetcher, ffmpeg.NewService(cfg.FFmpeg)), nil
}

// NewDownloaderWithDependencies allows injecting collaborators (used in tests).
func NewDownloaderWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, fetcher Fetcher, prober Prober) *Downloader {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "downloader"))
	}
	return &Downloader{cfg: cfg, store: store, logger: stageLogger, fetcher: fetcher, prober: prober}
}

// Prepare validates the source before any work happens. Every failure the
// stage returns carries ErrDownload.
func (d *Downloader) Prepare(ctx context.Context, video *records.Video) error {
	return services.Tag(ErrDownload, d.prepare(ctx, video))
}

// Execute acquires the asset, probes it, and records the media metadata.
func (d *Downloader) Execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	out, err := d.execute(ctx, video, artifact)
	if err != nil {
		return nil, services.Tag(ErrDownload, err)
	}
	return out, nil
}

func (d *Downloader) prepare(_ context.Context, video *records.Video) error {
	source := strings.TrimSpace(video.SourceURL)
	if source == "" {
		return services.Wrap(services.ErrValidation, "download", "validate inputs", "video has no source", nil)
	}
	if video.SourceKind == records.SourceLocal {
		if _, err := os.Stat(source); err != nil {
			return services.Wrap(services.ErrValidation, "download", "validate inputs",
				fmt.Sprintf("local file %s is not readable", source), err)
		}
	}
	return nil
}

func (d *Downloader) execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	logger := logging.WithContext(ctx, d.logger)

	var assetPath string
	var err error
	switch video.SourceKind {
	case records.SourceLocal:
		assetPath, err = d.ingestLocal(ctx, video)
	default:
		assetPath, err = d.fetchRemote(ctx, video)
	}
	if err != nil {
		return nil, err
	}

	probe, err := d.prober.Probe(ctx, assetPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "download", "probe asset", "inspect acquired file", err)
	}

	video.AssetPath = assetPath
	video.DurationSeconds = probe.DurationSeconds
	video.Format = probe.FormatName
	video.SizeMB = float64(probe.SizeBytes) / (1024 * 1024)
	if err := d.store.UpdateVideo(ctx, video); err != nil {
		return nil, err
	}

	logger.Info("video acquired",
		logging.String("asset_path", assetPath),
		logging.Float64("duration_seconds", probe.DurationSeconds),
		logging.Float64("size_mb", video.SizeMB),
	)
	result := *artifact
	result.AssetPath = assetPath
	result.DurationSeconds = probe.DurationSeconds
	return &result, nil
}

func (d *Downloader) fetchRemote(ctx context.Context, video *records.Video) (string, error) {
	logger := logging.WithContext(ctx, d.logger)

	meta, err := d.fetcher.Probe(ctx, video.SourceURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(video.Title) == "" && meta.Title != "" {
		video.Title = meta.Title
	}
	logger.Info("downloading remote video",
		logging.String("title", video.Title),
		logging.String("source_url", video.SourceURL),
	)

	// Download into staging so a partial transfer never lands in the
	// library, then publish the finished file with an atomic rename.
	stagingDir := filepath.Join(d.cfg.Paths.StagingDir, "tmp")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "download", "fetch remote", "create staging directory", err)
	}
	result, err := d.fetcher.Download(ctx, video.SourceURL, stagingDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.cfg.VideosDir(), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "download", "fetch remote", "create library directory", err)
	}
	dest := filepath.Join(d.cfg.VideosDir(), fmt.Sprintf("video_%d%s", video.ID, filepath.Ext(result.Path)))
	if err := fileutil.MoveFile(result.Path, dest); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "download", "fetch remote", "publish downloaded file into library", err)
	}
	return dest, nil
}

func (d *Downloader) ingestLocal(ctx context.Context, video *records.Video) (string, error) {
	logger := logging.WithContext(ctx, d.logger)

	source := strings.TrimSpace(video.SourceURL)
	dest := filepath.Join(d.cfg.VideosDir(), fmt.Sprintf("video_%d%s", video.ID, filepath.Ext(source)))
	if err := os.MkdirAll(d.cfg.VideosDir(), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "download", "ingest local", "create library directory", err)
	}
	if err := fileutil.CopyFileVerified(source, dest); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "download", "ingest local", "copy local file into library", err)
	}
	if strings.TrimSpace(video.Title) == "" {
		base := filepath.Base(source)
		video.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	logger.Info("local video ingested", logging.String("asset_path", dest))
	return dest, nil
}

func (d *Downloader) HealthCheck(ctx context.Context) stage.Health {
	const name = "downloader"
	if d.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if d.fetcher == nil {
		return stage.Unhealthy(name, "yt-dlp client unavailable")
	}
	binary := strings.TrimSpace(d.cfg.Downloader.Binary)
	if binary == "" {
		return stage.Unhealthy(name, "yt-dlp binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("yt-dlp binary %q not found", binary))
	}
	return stage.Healthy(name)
}
