package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each stream in <dir>/<stream>.ndjson.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	for _, stream := range Streams {
		f, err := os.OpenFile(filepath.Join(dir, stream+".ndjson"), os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create %s ledger: %w", stream, err)
		}
		f.Close()
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(stream string) string {
	return filepath.Join(s.dir, stream+".ndjson")
}

func (s *FileStore) Append(_ context.Context, stream string, line []byte) error {
	if err := checkStream(stream); err != nil {
		return err
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, bytes.TrimRight(line, "\n")...)
	buf = append(buf, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(stream), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s ledger: %w", stream, err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("append %s ledger: %w", stream, err)
	}
	return f.Close()
}

func (s *FileStore) Replay(ctx context.Context, stream string, fn func(line []byte) error) error {
	if err := checkStream(stream); err != nil {
		return err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.path(stream))
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s ledger: %w", stream, err)
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) Truncate(_ context.Context, stream string) error {
	if err := checkStream(stream); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Truncate(s.path(stream), 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("truncate %s ledger: %w", stream, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
