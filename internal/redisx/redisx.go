package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct{ R *redis.Client }

// NewClient parses a redis:// URL (or bare host:port) and pings the server.
func NewClient(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url, DB: 0}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{R: rdb}, nil
}

func (c *Client) Close() error { return c.R.Close() }
