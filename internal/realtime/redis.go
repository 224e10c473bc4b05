package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	*redis.Client
}

func NewRedisClient(redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisClient{client}, nil
}

func (c *RedisClient) Close() error {
	return c.Client.Close()
}

// UserChannel names the pub/sub channel carrying one user's session
// events.
func UserChannel(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}
