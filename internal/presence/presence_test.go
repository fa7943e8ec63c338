package presence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ReferenceCounted(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	first, _ := l.Connect(ctx, 1, "tab-a")
	assert.True(t, first)
	first, _ = l.Connect(ctx, 1, "tab-b")
	assert.False(t, first)
	assert.Equal(t, 2, l.Count(1))

	last, _ := l.Disconnect(ctx, 1, "tab-a")
	assert.False(t, last)
	online, _ := l.IsOnline(ctx, 1)
	assert.True(t, online, "second tab keeps the user online")

	last, _ = l.Disconnect(ctx, 1, "tab-b")
	assert.True(t, last)
	online, _ = l.IsOnline(ctx, 1)
	assert.False(t, online)

	last, _ = l.Disconnect(ctx, 1, "tab-b")
	assert.False(t, last, "unknown connection is a no-op")
}

func TestRedis_ReferenceCounted(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	userID := time.Now().UnixNano()
	defer client.Del(context.Background(), presenceKey(userID))

	r := NewRedis(client, fmt.Sprintf("test-%d", userID), time.Minute)

	first, err := r.Connect(ctx, userID, "a")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = r.Connect(ctx, userID, "b")
	require.NoError(t, err)
	assert.False(t, first)

	last, err := r.Disconnect(ctx, userID, "a")
	require.NoError(t, err)
	assert.False(t, last)

	online, err := r.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, r.Refresh(ctx, userID, "b"))

	last, err = r.Disconnect(ctx, userID, "b")
	require.NoError(t, err)
	assert.True(t, last)

	online, err = r.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}
