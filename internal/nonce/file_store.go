package nonce

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FileStore keeps one file per claimed nonce.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create nonce dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) Claim(_ context.Context, n string) (bool, error) {
	if !Valid(n) {
		return false, ErrInvalidNonce
	}
	f, err := os.OpenFile(filepath.Join(s.dir, n), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim nonce: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.FormatInt(s.now().UnixMilli(), 10)); err != nil {
		return true, fmt.Errorf("write nonce: %w", err)
	}
	return true, nil
}

func (s *FileStore) Sweep(_ context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read nonce dir: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed concurrently
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, fmt.Errorf("remove nonce %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}
