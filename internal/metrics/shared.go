package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

const BackupGauge = "mq_last_backup_timestamp"

// SharedStore holds gauges written by one process and read by another, such
// as the backup timestamp set by the backup job and scraped by the server.
type SharedStore interface {
	LastBackup(ctx context.Context) (int64, error)
	SetLastBackup(ctx context.Context, ts int64) error
}

// FileShared keeps shared gauges in a small JSON object on disk.
type FileShared struct {
	path string
	mu   sync.Mutex
}

func NewFileShared(path string) *FileShared {
	return &FileShared{path: path}
}

func (f *FileShared) read() (map[string]json.Number, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.Number{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read shared metrics: %w", err)
	}
	values := map[string]json.Number{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("decode shared metrics: %w", err)
		}
	}
	return values, nil
}

func (f *FileShared) LastBackup(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return 0, err
	}
	v, ok := values[BackupGauge]
	if !ok {
		return 0, nil
	}
	n, err := v.Int64()
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", BackupGauge, err)
	}
	return n, nil
}

func (f *FileShared) SetLastBackup(_ context.Context, ts int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		// rewrite a corrupt file from scratch
		values = map[string]json.Number{}
	}
	values[BackupGauge] = json.Number(strconv.FormatInt(ts, 10))

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode shared metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write shared metrics: %w", err)
	}
	return os.Rename(tmp, f.path)
}

const redisBackupKey = "mq:metrics:last_backup"

// RedisShared keeps shared gauges in Redis so every instance sees the same value.
type RedisShared struct {
	client *redis.Client
}

func NewRedisShared(client *redis.Client) *RedisShared {
	return &RedisShared{client: client}
}

func (r *RedisShared) LastBackup(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, redisBackupKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return n, nil
}

func (r *RedisShared) SetLastBackup(ctx context.Context, ts int64) error {
	if err := r.client.Set(ctx, redisBackupKey, ts, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
