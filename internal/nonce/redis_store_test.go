package nonce

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_FirstClaimWins(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	fresh, err := store.Claim(ctx, "deadbeef")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.True(t, mr.Exists(nonceKey("deadbeef")))

	fresh, err = store.Claim(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestRedisStore_ClaimExpires(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "cafe")
	require.NoError(t, err)

	mr.FastForward(Retention + time.Second)

	fresh, err := store.Claim(ctx, "cafe")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Claim(context.Background(), "cafe")
	assert.Error(t, err)
}
