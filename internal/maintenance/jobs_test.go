package maintenance

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fjod/mindquiz/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	at time.Time
}

func (r *recorder) SetLastBackup(_ context.Context, at time.Time) error {
	r.at = at
	return nil
}

func newTestJobs(t *testing.T) (*Jobs, ledger.Store, *recorder, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.NewFileStore(dir)
	require.NoError(t, err)

	rec := &recorder{}
	jobs := NewJobs(store, filepath.Join(dir, "archive"), filepath.Join(dir, "backup"), rec, testLogger)
	jobs.now = func() time.Time { return time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC) }
	return jobs, store, rec, dir
}

func TestRotate(t *testing.T) {
	jobs, store, _, dir := newTestJobs(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, ledger.StreamOrders, []byte(`{"orderId":"a"}`)))
	require.NoError(t, store.Append(ctx, ledger.StreamOrders, []byte(`{"orderId":"b"}`)))

	written, err := jobs.Rotate(ctx)
	require.NoError(t, err)

	// empty streams are skipped
	require.Len(t, written, 1)
	assert.Equal(t, filepath.Join(dir, "archive", "orders-2026-03-01-04-00-00.ndjson"), written[0])

	data, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.Equal(t, "{\"orderId\":\"a\"}\n{\"orderId\":\"b\"}\n", string(data))

	lines := 0
	require.NoError(t, store.Replay(ctx, ledger.StreamOrders, func([]byte) error {
		lines++
		return nil
	}))
	assert.Zero(t, lines)
}

func TestBackup(t *testing.T) {
	jobs, store, rec, _ := newTestJobs(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, ledger.StreamOrders, []byte(`{"o":1}`)))
	require.NoError(t, store.Append(ctx, ledger.StreamCoupons, []byte(`{"c":1}`)))
	require.NoError(t, store.Append(ctx, ledger.StreamEvents, []byte(`{"e":1}`)))

	path, err := jobs.Backup(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "mindquiz-data-2026-03-01-04-00-00.ndjson.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	assert.Equal(t, "{\"o\":1}\n{\"c\":1}\n{\"e\":1}\n", string(data))
	assert.Equal(t, jobs.now(), rec.at)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestPrune(t *testing.T) {
	jobs, _, _, dir := newTestJobs(t)
	archive := filepath.Join(dir, "archive")
	backup := filepath.Join(dir, "backup")
	require.NoError(t, os.MkdirAll(archive, 0o755))
	require.NoError(t, os.MkdirAll(backup, 0o755))

	oldFile := filepath.Join(archive, "orders-old.ndjson")
	oldBackup := filepath.Join(backup, "mindquiz-data-old.ndjson.gz")
	recent := filepath.Join(backup, "mindquiz-data-new.ndjson.gz")
	for _, p := range []string{oldFile, oldBackup, recent} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	old := jobs.now().Add(-31 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, old, old))
	require.NoError(t, os.Chtimes(oldBackup, old, old))
	fresh := jobs.now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(recent, fresh, fresh))

	removed, err := jobs.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(recent)
	assert.NoError(t, err)
	_, err = os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))
}

func TestPrune_MissingDirs(t *testing.T) {
	jobs, _, _, _ := newTestJobs(t)

	removed, err := jobs.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLatestBackup(t *testing.T) {
	jobs, _, _, dir := newTestJobs(t)

	_, ok, err := jobs.LatestBackup()
	require.NoError(t, err)
	assert.False(t, ok)

	backup := filepath.Join(dir, "backup")
	require.NoError(t, os.MkdirAll(backup, 0o755))
	older := filepath.Join(backup, "a.ndjson.gz")
	newer := filepath.Join(backup, "b.ndjson.gz")
	require.NoError(t, os.WriteFile(older, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("x"), 0o644))
	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(older, t1, t1))
	require.NoError(t, os.Chtimes(newer, t2, t2))

	got, ok, err := jobs.LatestBackup()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(t2))
}

func TestScheduler(t *testing.T) {
	jobs, _, _, _ := newTestJobs(t)

	s, err := NewScheduler(jobs, Schedules{Rotate: "0 4 * * 1", Backup: "30 3 * * *"}, testLogger)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	_, err = NewScheduler(jobs, Schedules{Prune: "every day"}, testLogger)
	assert.Error(t, err)
}
