// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package store owns the durable and ephemeral store connections and binds
// database transactions to request contexts.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Querier executes statements against either the pool or an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the subset of *pgxpool.Pool the handle depends on.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type txKey struct{}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// Handle bundles the database pool and the Redis clients used for a request.
type Handle struct {
	pool    Pool
	primary redis.UniversalClient
	reader  redis.UniversalClient
}

// NewHandle creates a Handle. A nil reader falls back to primary.
func NewHandle(pool Pool, primary, reader redis.UniversalClient) *Handle {
	if reader == nil {
		reader = primary
	}
	return &Handle{pool: pool, primary: primary, reader: reader}
}

// Pooled returns the underlying database pool.
func (h *Handle) Pooled() Pool {
	return h.pool
}

// Primary returns the Redis client that receives writes and publishes.
func (h *Handle) Primary() redis.UniversalClient {
	return h.primary
}

// Reader returns the Redis client used for reads.
func (h *Handle) Reader() redis.UniversalClient {
	return h.reader
}

// Querier returns the transaction bound to ctx, or the pool when there is none.
func (h *Handle) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return h.pool
}

// WithTx runs fn inside a transaction bound to the context passed to fn.
// The transaction commits when fn returns nil and rolls back when fn returns
// an error or panics. A context that already holds a transaction is reused,
// so nested calls join the outer transaction. fn's error is returned as is.
func (h *Handle) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return oops.Code("TX_ROLLBACK_FAILED").
				With("cause", err.Error()).
				Wrap(rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// Ping checks the database and both Redis clients.
func (h *Handle) Ping(ctx context.Context) error {
	if err := h.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	if err := h.primary.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_PING_FAILED").With("role", "primary").Wrap(err)
	}
	if h.reader != h.primary {
		if err := h.reader.Ping(ctx).Err(); err != nil {
			return oops.Code("REDIS_PING_FAILED").With("role", "reader").Wrap(err)
		}
	}
	return nil
}

// Close releases the pool and the Redis clients.
func (h *Handle) Close() error {
	h.pool.Close()
	var errs []error
	if err := h.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if h.reader != h.primary {
		if err := h.reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return oops.Code("STORE_CLOSE_FAILED").Join(errs...)
	}
	return nil
}
