package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "scrapbook:presence:"

	// DefaultTTL bounds how long a crashed node's connections keep a user online.
	DefaultTTL = 2 * time.Minute
)

func presenceKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// Redis shares presence across gateway nodes.
// Key: scrapbook:presence:{userId} (HASH), field: {nodeId}:{connId}, value: connect time in ms.
type Redis struct {
	client *redis.Client
	nodeID string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client *redis.Client, nodeID string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		nodeID: nodeID,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

func (r *Redis) field(connID string) string {
	return fmt.Sprintf("%s:%s", r.nodeID, connID)
}

func (r *Redis) Connect(ctx context.Context, userID int64, connID string) (bool, error) {
	key := presenceKey(userID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, r.field(connID), time.Now().UnixMilli())
	pipe.Expire(ctx, key, r.ttl)
	count := pipe.HLen(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("presence connect: %w", err)
	}

	r.logger.Debug("Presence connected", "userId", userID, "connId", connID, "connections", count.Val())
	return count.Val() == 1, nil
}

func (r *Redis) Disconnect(ctx context.Context, userID int64, connID string) (bool, error) {
	key := presenceKey(userID)

	pipe := r.client.TxPipeline()
	removed := pipe.HDel(ctx, key, r.field(connID))
	count := pipe.HLen(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("presence disconnect: %w", err)
	}

	r.logger.Debug("Presence disconnected", "userId", userID, "connId", connID, "connections", count.Val())
	return removed.Val() > 0 && count.Val() == 0, nil
}

// Refresh is called on heartbeat to keep the key alive.
func (r *Redis) Refresh(ctx context.Context, userID int64, _ string) error {
	return r.client.Expire(ctx, presenceKey(userID), r.ttl).Err()
}

func (r *Redis) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := r.client.HLen(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
