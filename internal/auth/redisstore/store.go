// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package redisstore implements auth.SessionStore on Redis. Values are JSON
// documents under namespaced keys.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// Key namespaces.
const (
	ProvisionalPrefix       = "preregister:"
	SessionPrefix           = "session:"
	PasswordResetCodePrefix = "password_reset_code:"
)

// Store implements auth.SessionStore. Writes go to primary, reads to reader.
type Store struct {
	primary redis.UniversalClient
	reader  redis.UniversalClient
}

// New creates a Store. A nil reader reads from primary.
func New(primary, reader redis.UniversalClient) *Store {
	if reader == nil {
		reader = primary
	}
	return &Store{primary: primary, reader: reader}
}

// PutProvisional stores a provisional session under its code.
func (s *Store) PutProvisional(ctx context.Context, ps *auth.ProvisionalSession, ttl time.Duration) error {
	return s.put(ctx, ProvisionalPrefix+ps.Code, ps, ttl)
}

// GetProvisional loads the provisional session for code.
func (s *Store) GetProvisional(ctx context.Context, code string) (*auth.ProvisionalSession, error) {
	var ps auth.ProvisionalSession
	if err := s.get(ctx, ProvisionalPrefix+code, &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

// DeleteProvisional removes the provisional session for code.
func (s *Store) DeleteProvisional(ctx context.Context, code string) error {
	return s.del(ctx, ProvisionalPrefix+code)
}

// PutSession stores a session under its id.
func (s *Store) PutSession(ctx context.Context, session *auth.Session, ttl time.Duration) error {
	return s.put(ctx, SessionPrefix+session.ID, session, ttl)
}

// GetSession loads the session with id.
func (s *Store) GetSession(ctx context.Context, id string) (*auth.Session, error) {
	var session auth.Session
	if err := s.get(ctx, SessionPrefix+id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes the session with id.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.del(ctx, SessionPrefix+id)
}

// PutPasswordResetCode stores a reset code.
func (s *Store) PutPasswordResetCode(ctx context.Context, prc *auth.PasswordResetCode, ttl time.Duration) error {
	return s.put(ctx, PasswordResetCodePrefix+prc.Code, prc, ttl)
}

// GetPasswordResetCode loads a reset code.
func (s *Store) GetPasswordResetCode(ctx context.Context, code string) (*auth.PasswordResetCode, error) {
	var prc auth.PasswordResetCode
	if err := s.get(ctx, PasswordResetCodePrefix+code, &prc); err != nil {
		return nil, err
	}
	return &prc, nil
}

// DeletePasswordResetCode removes a reset code.
func (s *Store) DeletePasswordResetCode(ctx context.Context, code string) error {
	return s.del(ctx, PasswordResetCodePrefix+code)
}

func (s *Store) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return oops.Code("KV_ENCODE_FAILED").With("namespace", namespace(key)).Wrap(err)
	}
	if err := s.primary.Set(ctx, key, data, ttl).Err(); err != nil {
		return oops.Code("KV_SET_FAILED").With("namespace", namespace(key)).Wrap(err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.reader.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.ErrNotFound
	}
	if err != nil {
		return oops.Code("KV_GET_FAILED").With("namespace", namespace(key)).Wrap(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return oops.Code("KV_DECODE_FAILED").With("namespace", namespace(key)).Wrap(err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	if err := s.primary.Del(ctx, key).Err(); err != nil {
		return oops.Code("KV_DEL_FAILED").With("namespace", namespace(key)).Wrap(err)
	}
	return nil
}

// namespace keeps identifiers out of error context.
func namespace(key string) string {
	ns, _, _ := strings.Cut(key, ":")
	return ns
}

var _ auth.SessionStore = (*Store)(nil)
