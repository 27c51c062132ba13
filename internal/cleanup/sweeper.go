package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"golang.org/x/sys/unix"

	"lectern/internal/config"
	"lectern/internal/logging"
)

// Result summarizes one sweep over the working directories.
type Result struct {
	DeletedFiles int
	FreedMB      float64
	DiskFreeMB   float64
}

// Sweeper removes stale intermediate files from the working directories.
// Published assets (library videos, clips, thumbnails) are never touched;
// only extracted audio and staging leftovers age out.
type Sweeper struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper constructs a sweeper for the configured staging paths.
func NewSweeper(cfg *config.Config, logger *slog.Logger) *Sweeper {
	sweepLogger := logger
	if sweepLogger != nil {
		sweepLogger = sweepLogger.With(logging.String(logging.FieldComponent, "cleanup"))
	}
	return &Sweeper{cfg: cfg, logger: sweepLogger, now: time.Now}
}

// WithClock overrides the time source (for testing).
func (s *Sweeper) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Sweep deletes intermediate files older than the configured age and
// reports how much space was reclaimed.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var result Result

	maxAge := time.Duration(s.cfg.Cleanup.MaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := s.now().Add(-maxAge)

	for _, dir := range []string{s.cfg.AudioDir(), filepath.Join(s.cfg.Paths.StagingDir, "tmp")} {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		deleted, freed, err := s.sweepDir(dir, cutoff)
		if err != nil {
			return result, err
		}
		result.DeletedFiles += deleted
		result.FreedMB += freed
	}

	if free, _, err := DiskFree(s.cfg.Paths.StagingDir); err != nil {
		if s.logger != nil {
			s.logger.Warn("read free space", logging.Error(err))
		}
	} else {
		result.DiskFreeMB = float64(free) / (1024 * 1024)
	}

	if s.logger != nil {
		s.logger.Info("cleanup sweep finished",
			logging.Int("deleted_files", result.DeletedFiles),
			logging.Float64("freed_mb", result.FreedMB),
			logging.Float64("disk_free_mb", result.DiskFreeMB),
		)
	}
	return result, nil
}

func (s *Sweeper) sweepDir(dir string, cutoff time.Time) (int, float64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("cleanup: read %s: %w", dir, err)
	}

	var deleted int
	var freedBytes int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if s.logger != nil {
				s.logger.Warn("cleanup delete failed",
					logging.String("path", path),
					logging.Error(err),
				)
			}
			continue
		}
		deleted++
		freedBytes += info.Size()
	}
	return deleted, float64(freedBytes) / (1024 * 1024), nil
}

// DiskFree reports free and total bytes for the filesystem holding path.
func DiskFree(path string) (free, total uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	blockSize := uint64(stat.Bsize)
	return stat.Bavail * blockSize, stat.Blocks * blockSize, nil
}
