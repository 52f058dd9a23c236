// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package postgres implements the auth repositories on PostgreSQL. Every
// statement runs on the transaction bound to the caller's context when one
// is open.
package postgres

import (
	"context"

	"github.com/tollgate/tollgate/internal/store"
)

// Conn resolves the querier for a context. *store.Handle implements it.
type Conn interface {
	Querier(ctx context.Context) store.Querier
}
