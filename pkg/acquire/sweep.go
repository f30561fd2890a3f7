package acquire

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SweepStale removes run directories under root older than maxAge. These are
// left behind only when a process dies mid-run. A missing root is not an error.
func SweepStale(root string, maxAge time.Duration, logger *zap.Logger) (int, error) {
	logger = logger.Named("sweeper")

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", root, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), WorkDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		if isOpen(dir) {
			logger.Debug("Skipping work directory of a run in progress", zap.String("dir", dir))
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", dir, err))
			continue
		}
		removed++
		logger.Info("Removed stale work directory",
			zap.String("dir", dir),
			zap.Duration("age", time.Since(info.ModTime())))
	}

	return removed, errors.Join(errs...)
}
