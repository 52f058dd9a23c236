// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DatabaseOptions configure the Postgres pool.
type DatabaseOptions struct {
	URL            string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
}

// RedisOptions configure one Redis client.
type RedisOptions struct {
	URL      string
	MinIdle  int
	PoolSize int
}

// Options configure Open.
type Options struct {
	Database DatabaseOptions
	Primary  RedisOptions
	// Reader.URL empty shares the primary client.
	Reader RedisOptions
	// PingAttempts bounds startup retries. Zero means 5.
	PingAttempts uint64
	// PingBackoff is the first retry delay. Zero means 500ms.
	PingBackoff time.Duration
}

// PoolConfig translates options into a pgxpool configuration.
func PoolConfig(opts DatabaseOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.IdleTimeout > 0 {
		cfg.MaxConnIdleTime = opts.IdleTimeout
	}
	if opts.MaxLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxLifetime
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	return cfg, nil
}

// RedisConfig translates options into go-redis client options.
func RedisConfig(opts RedisOptions) (*redis.Options, error) {
	cfg, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	if opts.MinIdle > 0 {
		cfg.MinIdleConns = opts.MinIdle
	}
	if opts.PoolSize > 0 {
		cfg.PoolSize = opts.PoolSize
	}
	return cfg, nil
}

// Open connects to Postgres and Redis and waits until both answer a ping.
func Open(ctx context.Context, opts Options) (*Handle, error) {
	poolCfg, err := PoolConfig(opts.Database)
	if err != nil {
		return nil, err
	}
	primaryCfg, err := RedisConfig(opts.Primary)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	primary := redis.NewClient(primaryCfg)
	reader := primary
	if opts.Reader.URL != "" && opts.Reader.URL != opts.Primary.URL {
		readerCfg, err := RedisConfig(opts.Reader)
		if err != nil {
			pool.Close()
			_ = primary.Close()
			return nil, err
		}
		reader = redis.NewClient(readerCfg)
	}

	h := NewHandle(pool, primary, reader)
	if err := WaitReady(ctx, h, opts.PingAttempts, opts.PingBackoff); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

// Pinger is anything WaitReady can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitReady pings p with exponential backoff until it answers, the attempts
// are exhausted, or ctx ends.
func WaitReady(ctx context.Context, p Pinger, attempts uint64, base time.Duration) error {
	if attempts == 0 {
		attempts = 5
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "store not ready, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").
			With("attempts", attempts).
			Wrap(err)
	}
	return nil
}
