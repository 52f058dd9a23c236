// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/tollgate/tollgate/internal/apperr"
	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/logging"
)

// SessionResolver looks up sessions by id.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID string) (*auth.Session, error)
}

type sessionKey struct{}

// SessionFromContext returns the session bound by the session middleware,
// or nil.
func SessionFromContext(ctx context.Context) *auth.Session {
	s, _ := ctx.Value(sessionKey{}).(*auth.Session)
	return s
}

// SessionBinder resolves the sid cookie into a session.
type SessionBinder struct {
	resolver SessionResolver
}

// NewSessionBinder creates a SessionBinder.
func NewSessionBinder(resolver SessionResolver) *SessionBinder {
	return &SessionBinder{resolver: resolver}
}

// resolve tries every sid cookie in order and returns the first that maps
// to a live session.
func (b *SessionBinder) resolve(r *http.Request) *auth.Session {
	ctx := r.Context()
	for _, sessionID := range cookieValues(r, SessionCookie) {
		session, err := b.resolver.GetSession(ctx, sessionID)
		if err == nil {
			return session
		}
		if !errors.Is(err, auth.ErrNotFound) {
			logging.FromContext(ctx).WarnContext(ctx, "session lookup failed", "error", err)
		}
	}
	return nil
}

func withSession(r *http.Request, session *auth.Session) *http.Request {
	ctx := context.WithValue(r.Context(), sessionKey{}, session)
	logger := logging.FromContext(ctx).With("account_id", session.Account.ID)
	return r.WithContext(logging.WithLogger(ctx, logger))
}

// Optional binds the session when one resolves and never rejects.
func (b *SessionBinder) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session := b.resolve(r); session != nil {
			r = withSession(r, session)
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects the request with auth/invalid_session unless a session
// resolves.
func (b *SessionBinder) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := b.resolve(r)
		if session == nil {
			presentError(w, r, apperr.InvalidSession())
			return
		}
		next.ServeHTTP(w, withSession(r, session))
	})
}
