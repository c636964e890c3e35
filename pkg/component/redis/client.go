// Package redis connects the query-embedding cache to Redis, either a single
// node or a Sentinel-managed master.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	options "github.com/kart-io/docqa/pkg/options/redis"
)

// Client owns the go-redis connection pool.
type Client struct {
	rdb goredis.UniversalClient
}

// NewWithContext connects and pings Redis. With MasterName set, Host:Port is
// treated as a Sentinel address.
func NewWithContext(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}
	if err := errors.Join(opts.Validate()...); err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        []string{opts.Addr()},
		MasterName:   opts.MasterName,
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr(), err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping is used as the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Universal exposes the client to the embedding cache.
func (c *Client) Universal() goredis.UniversalClient {
	return c.rdb
}
