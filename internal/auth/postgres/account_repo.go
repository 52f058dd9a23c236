// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	conn Conn
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(conn Conn) *AccountRepository {
	return &AccountRepository{conn: conn}
}

// Get retrieves an account by id.
func (r *AccountRepository) Get(ctx context.Context, id string) (*auth.Account, error) {
	var a auth.Account
	err := r.conn.Querier(ctx).QueryRow(ctx, `
		SELECT id, name, display_name, create_time
		FROM account
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.DisplayName, &a.CreateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account").
			With("id", id).
			Wrap(err)
	}
	a.CreateTime = a.CreateTime.UTC()
	return &a, nil
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.conn.Querier(ctx).Exec(ctx, `
		INSERT INTO account (id, name, display_name, create_time)
		VALUES ($1, $2, $3, $4)
	`,
		account.ID,
		account.Name,
		account.DisplayName,
		account.CreateTime,
	)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID).
			Wrap(err)
	}
	return nil
}
