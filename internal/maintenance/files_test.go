package maintenance

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/mindquiz/internal/ledger"
)

func TestListFiles(t *testing.T) {
	jobs, _, _, dir := newTestJobs(t)

	files, err := jobs.ListFiles(ScopeBackup)
	require.NoError(t, err)
	assert.Empty(t, files)

	archive := filepath.Join(dir, "archive")
	require.NoError(t, os.MkdirAll(archive, 0o755))
	older := filepath.Join(archive, "orders-a.ndjson")
	newer := filepath.Join(archive, "orders-b.ndjson")
	require.NoError(t, os.WriteFile(older, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("xyz"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(archive, "partial.tmp"), []byte("x"), 0o644))
	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(older, t1, t1))
	require.NoError(t, os.Chtimes(newer, t2, t2))

	files, err = jobs.ListFiles(ScopeArchive)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "orders-b.ndjson", files[0].Name)
	assert.Equal(t, int64(3), files[0].Size)
	assert.Equal(t, "orders-a.ndjson", files[1].Name)

	_, err = jobs.ListFiles("secrets")
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestFilePath(t *testing.T) {
	jobs, store, _, dir := newTestJobs(t)
	require.NoError(t, store.Append(context.Background(), ledger.StreamOrders, []byte(`{"o":1}`)))
	path, err := jobs.Backup(context.Background())
	require.NoError(t, err)

	got, err := jobs.FilePath(ScopeBackup, filepath.Base(path))
	require.NoError(t, err)
	assert.Equal(t, path, got)

	// the ledger files live one level above the backup dir
	require.FileExists(t, filepath.Join(dir, "orders.ndjson"))
	for _, name := range []string{
		"",
		".",
		"..",
		"../orders.ndjson",
		"..\\orders.ndjson",
		filepath.Join(dir, "orders.ndjson"),
		"missing.ndjson.gz",
	} {
		_, err := jobs.FilePath(ScopeBackup, name)
		assert.ErrorIs(t, err, ErrFileNotFound, name)
	}
}

func TestRestoreCheck(t *testing.T) {
	jobs, store, _, _ := newTestJobs(t)
	ctx := context.Background()

	_, err := jobs.RestoreCheck(ctx)
	assert.ErrorIs(t, err, ErrNoBackup)

	for i := 0; i < 7; i++ {
		require.NoError(t, store.Append(ctx, ledger.StreamOrders, []byte(`{"o":1}`)))
	}
	path, err := jobs.Backup(ctx)
	require.NoError(t, err)

	res, err := jobs.RestoreCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(path), res.File)
	assert.Equal(t, 7, res.Lines)
	assert.Equal(t, 5, res.Sampled)
	assert.Equal(t, 5, res.Parsed)
	assert.True(t, res.OK())
}

func TestRestoreCheck_CorruptLines(t *testing.T) {
	jobs, _, _, dir := newTestJobs(t)
	backup := filepath.Join(dir, "backup")
	require.NoError(t, os.MkdirAll(backup, 0o755))

	f, err := os.Create(filepath.Join(backup, "mindquiz-data-bad.ndjson.gz"))
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("{\"o\":1}\nnot json\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	res, err := jobs.RestoreCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Lines)
	assert.Equal(t, 1, res.Parsed)
	assert.False(t, res.OK())
}
