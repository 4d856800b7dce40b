package sink

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestHealthStore_DisabledIsNoop(t *testing.T) {
	h := NewHealthStore(nil, false, time.Minute)
	ctx := context.Background()

	require.NoError(t, h.RecordFailure(ctx, "nats"))
	state, err := h.Get(ctx, "nats")
	require.NoError(t, err)
	assert.False(t, state.Degraded)
}

func TestHealthStore_RecordFailureThenSuccess(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	h := NewHealthStore(client, true, time.Minute)
	ctx := context.Background()

	require.NoError(t, h.RecordFailure(ctx, "nats"))
	state, err := h.Get(ctx, "nats")
	require.NoError(t, err)
	assert.True(t, state.Degraded)
	assert.Equal(t, int64(1), state.FailureCount)

	require.NoError(t, h.RecordFailure(ctx, "nats"))
	state, err = h.Get(ctx, "nats")
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.FailureCount)

	require.NoError(t, h.RecordSuccess(ctx, "nats"))
	state, err = h.Get(ctx, "nats")
	require.NoError(t, err)
	assert.False(t, state.Degraded)
	assert.Equal(t, int64(2), state.FailureCount)
}

func TestHealthStore_GetUnknownSinkReturnsZeroValue(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	h := NewHealthStore(client, true, time.Minute)
	state, err := h.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, state.Degraded)
	assert.Equal(t, int64(0), state.FailureCount)
}
