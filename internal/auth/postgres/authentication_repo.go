// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// AuthenticationRepository implements auth.AuthenticationRepository using PostgreSQL.
type AuthenticationRepository struct {
	conn Conn
}

// NewAuthenticationRepository creates a new AuthenticationRepository.
func NewAuthenticationRepository(conn Conn) *AuthenticationRepository {
	return &AuthenticationRepository{conn: conn}
}

// GetByMail retrieves the authentication registered for mail.
func (r *AuthenticationRepository) GetByMail(ctx context.Context, mail string) (*auth.Authentication, error) {
	var a auth.Authentication
	err := r.conn.Querier(ctx).QueryRow(ctx, `
		SELECT account_id, mail, salt, password
		FROM authentication
		WHERE mail = $1
	`, mail).Scan(&a.AccountID, &a.Mail, &a.Salt, &a.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("AUTHENTICATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("AUTHENTICATION_GET_FAILED").
			With("operation", "get authentication by mail").
			Wrap(err)
	}
	return &a, nil
}

// Create stores a new authentication. A mail that is already registered
// yields auth.ErrDuplicateMail.
func (r *AuthenticationRepository) Create(ctx context.Context, a *auth.Authentication) error {
	_, err := r.conn.Querier(ctx).Exec(ctx, `
		INSERT INTO authentication (account_id, mail, salt, password)
		VALUES ($1, $2, $3, $4)
	`,
		a.AccountID,
		a.Mail,
		a.Salt,
		a.PasswordHash,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.Code("AUTHENTICATION_DUPLICATE_MAIL").
			With("account_id", a.AccountID).
			With("constraint", pgErr.ConstraintName).
			Wrap(auth.ErrDuplicateMail)
	}
	if err != nil {
		return oops.Code("AUTHENTICATION_CREATE_FAILED").
			With("operation", "insert authentication").
			With("account_id", a.AccountID).
			Wrap(err)
	}
	return nil
}

// UpdatePassword replaces the password hash of the row matching both
// accountID and mail.
func (r *AuthenticationRepository) UpdatePassword(ctx context.Context, accountID, mail, passwordHash string) error {
	tag, err := r.conn.Querier(ctx).Exec(ctx, `
		UPDATE authentication
		SET password = $1
		WHERE account_id = $2 AND mail = $3
	`, passwordHash, accountID, mail)
	if err != nil {
		return oops.Code("AUTHENTICATION_UPDATE_FAILED").
			With("operation", "update password").
			With("account_id", accountID).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("AUTHENTICATION_NOT_FOUND").
			With("account_id", accountID).
			Wrap(auth.ErrNotFound)
	}
	return nil
}
