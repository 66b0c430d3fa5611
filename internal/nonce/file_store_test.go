package nonce

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_FirstClaimWins(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	fresh, err := store.Claim(ctx, "a1b2c3d4e5f60718")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.Claim(ctx, "a1b2c3d4e5f60718")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestFileStore_RejectsPathLikeNonce(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, n := range []string{"", "../etc", "ABCDEF", "zz"} {
		_, err := store.Claim(context.Background(), n)
		assert.ErrorIs(t, err, ErrInvalidNonce, n)
	}
}

func TestFileStore_SweepRemovesOldClaims(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Claim(ctx, "0001")
	require.NoError(t, err)
	_, err = store.Claim(ctx, "0002")
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "0001"), old, old))

	removed, err := store.Sweep(ctx, Retention)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, "0001"))
	assert.True(t, os.IsNotExist(err))

	// a swept nonce can be claimed again
	fresh, err := store.Claim(ctx, "0001")
	require.NoError(t, err)
	assert.True(t, fresh)
}
