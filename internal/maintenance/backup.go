package maintenance

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fjod/mindquiz/internal/ledger"
)

func streams() []string {
	return ledger.Streams
}

// Backup writes all streams, concatenated, to one gzip file and records the
// backup time.
func (j *Jobs) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(j.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	dst := filepath.Join(j.backupDir, fmt.Sprintf("mindquiz-data-%s.ndjson.gz", j.stamp()))
	tmp := dst + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	defer os.Remove(tmp)

	gz := gzip.NewWriter(f)
	for _, stream := range streams() {
		data, err := j.readStream(ctx, stream)
		if err != nil {
			f.Close()
			return "", fmt.Errorf("read %s: %w", stream, err)
		}
		if _, err := gz.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("compress %s: %w", stream, err)
		}
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("finish backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("publish backup: %w", err)
	}

	if err := j.recorder.SetLastBackup(ctx, j.now()); err != nil {
		j.logger.Error("record backup time failed", "error", err)
	}
	j.logger.Info("backup ok", "file", filepath.Base(dst))
	return dst, nil
}

// LatestBackup returns the modification time of the newest backup file.
// ok is false when there are no backups.
func (j *Jobs) LatestBackup() (t time.Time, ok bool, err error) {
	entries, err := os.ReadDir(j.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s: %w", j.backupDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !ok || info.ModTime().After(t) {
			t, ok = info.ModTime(), true
		}
	}
	return t, ok, nil
}
