package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/redis/go-redis/v9"
)

const capacityTTL = 24 * time.Hour

type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

func NewFromClient(c *redis.Client) *Cache { return &Cache{Client: c} }

func capacityKey(gameID string) string { return "game:capacity:" + gameID }

// GetCapacity returns the cached max_participants, -1 for a closed game.
func (c *Cache) GetCapacity(ctx context.Context, gameID string) (int, error) {
	val, err := c.Client.Get(ctx, capacityKey(gameID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrCacheMiss
		}
		return 0, err
	}
	return strconv.Atoi(val)
}

func (c *Cache) SetCapacity(ctx context.Context, gameID string, capacity int) error {
	return c.Client.Set(ctx, capacityKey(gameID), capacity, capacityTTL).Err()
}

// AllowRequest is a fixed window limiter keyed by caller. When Redis is
// unreachable it allows the request and returns the error for logging.
func (c *Cache) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := "ratelimit:" + key
	count, err := c.Client.Incr(ctx, k).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := c.Client.Expire(ctx, k, window).Err(); err != nil {
			// without a TTL the key would never reset
			_ = c.Client.Del(ctx, k).Err()
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
