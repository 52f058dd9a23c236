// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"time"

	"github.com/tollgate/tollgate/internal/mail"
)

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Get returns ErrNotFound when no account has the id.
	Get(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
}

// AuthenticationRepository manages credential persistence.
type AuthenticationRepository interface {
	// GetByMail returns ErrNotFound when no authentication has the mail.
	GetByMail(ctx context.Context, mail string) (*Authentication, error)
	// Create returns ErrDuplicateMail when the mail is already registered.
	Create(ctx context.Context, authentication *Authentication) error
	// UpdatePassword matches on both account id and mail.
	UpdatePassword(ctx context.Context, accountID, mail, passwordHash string) error
}

// SessionStore holds short-lived state. Getters return ErrNotFound for
// missing or expired keys. A ttl of zero stores without expiry.
type SessionStore interface {
	PutProvisional(ctx context.Context, session *ProvisionalSession, ttl time.Duration) error
	GetProvisional(ctx context.Context, code string) (*ProvisionalSession, error)
	DeleteProvisional(ctx context.Context, code string) error

	PutSession(ctx context.Context, session *Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	PutPasswordResetCode(ctx context.Context, code *PasswordResetCode, ttl time.Duration) error
	GetPasswordResetCode(ctx context.Context, code string) (*PasswordResetCode, error)
	DeletePasswordResetCode(ctx context.Context, code string) error
}

// PasswordHasher stretches and checks passwords. Stretcher is the
// production implementation.
type PasswordHasher interface {
	Hash(password, salt string) string
	Verify(password, salt, hash string) bool
	// Burn costs the same as Verify and is used when there is no stored
	// hash to compare against.
	Burn(password string)
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Transactor runs fn inside a durable-store transaction bound to the
// context it passes to fn. fn's error is returned unchanged.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}
