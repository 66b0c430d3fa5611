package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const DefaultPruneDays = 30

// Prune deletes archive and backup files last modified more than days ago.
func (j *Jobs) Prune(_ context.Context, days int) (int, error) {
	if days <= 0 {
		days = DefaultPruneDays
	}
	limit := j.now().Add(-time.Duration(days) * 24 * time.Hour)

	removed := 0
	for _, dir := range []string{j.archiveDir, j.backupDir} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("read %s: %w", dir, err)
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(limit) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
			}
			j.logger.Info("pruned", "dir", filepath.Base(dir), "file", e.Name())
			removed++
		}
	}

	j.logger.Info("prune done", "removed", removed, "days", days)
	return removed, nil
}
