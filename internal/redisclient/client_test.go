package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"adslot-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis (set TEST_REDIS_ADDR)")
	}
	c, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAllowFixedWindow(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, _, err := c.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retryAfter, err := c.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, retryAfter > 0 && retryAfter <= time.Minute)
}

func TestLockOwnership(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()
	key := "job:" + uuid.NewString()

	ok, err := c.AcquireLock(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, "owner-b"))
	ok, err = c.AcquireLock(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, "owner-a"))
	ok, err = c.AcquireLock(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChannelCache(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	ch := &models.Channel{ID: uuid.New(), Username: "cached", SlotDuration: 1800, IsActive: true}
	miss, err := c.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.SetChannel(ctx, ch, time.Minute))
	hit, err := c.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, 1800, hit.SlotDuration)

	require.NoError(t, c.InvalidateChannel(ctx, ch.ID))
	miss, err = c.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Nil(t, miss)
}
