package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/tourneur/internal/logger"
	"github.com/local/tourneur/internal/metrics"
)

// tempPrefix marks temp files created by Fetch on remote backends.
const tempPrefix = "tourneur-"

// tempMinAge keeps temp files of in-flight requests out of reach of a short
// retention age.
const tempMinAge = time.Hour

// Sweeper is implemented by backends that can expire old uploads.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// CleanupTemps removes leftover fetch temp files older than maxAge, or
// tempMinAge when that is longer. A crash between Fetch and release leaves
// them behind.
func CleanupTemps(maxAge time.Duration) int {
	maxAge = max(maxAge, tempMinAge)
	dir := os.TempDir()
	now := time.Now()
	removed := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(filepath.Join(dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// Sweep deletes uploads whose modification time is older than maxAge.
func (l *Local) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("sweep: remove failed")
			continue
		}
		removed++
	}
	return removed, nil
}

// RunSweeper expires uploads older than maxAge every interval until ctx is
// done. maxAge <= 0 disables it.
func RunSweeper(ctx context.Context, s Store, maxAge, interval time.Duration) {
	sw, ok := s.(Sweeper)
	if maxAge <= 0 || !ok {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	lg := logger.Component("sweeper").With().Str("backend", s.Backend()).Logger()
	lg.Info().Dur("max_age", maxAge).Dur("interval", interval).Msg("retention sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := sw.Sweep(ctx, maxAge)
		if err != nil && ctx.Err() == nil {
			lg.Error().Err(err).Msg("sweep failed")
		}
		temps := CleanupTemps(maxAge)
		if n > 0 || temps > 0 {
			lg.Info().Int("uploads", n).Int("temps", temps).Msg("expired files removed")
		}
		metrics.AddSwept(n + temps)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
