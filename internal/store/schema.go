// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package store

import (
	"context"
	_ "embed"

	"github.com/samber/oops"
)

// Schema is the DDL for the account and authentication tables. Applying it
// is idempotent.
//
//go:embed schema.sql
var Schema string

// ApplySchema executes Schema. Deployments manage schema changes out of
// band; this exists for tests and local bootstrapping.
func ApplySchema(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, Schema); err != nil {
		return oops.Code("SCHEMA_APPLY_FAILED").Wrap(err)
	}
	return nil
}
