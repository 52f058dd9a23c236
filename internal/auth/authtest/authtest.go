// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package authtest provides in-memory collaborators for exercising
// auth.Service without Postgres or a mail transport.
package authtest

import (
	"context"
	"maps"
	"sync"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/mail"
)

type txKey struct{}

// Credentials is an in-memory account and authentication store. It
// implements auth.AccountRepository, auth.AuthenticationRepository, and
// auth.Transactor. A transaction snapshots the maps and restores them when
// the callback fails.
type Credentials struct {
	mu       sync.Mutex
	accounts map[string]auth.Account
	byMail   map[string]auth.Authentication

	// FailCreateAuthentication, when set, is returned by the next
	// CreateAuthentication call.
	FailCreateAuthentication error
}

// NewCredentials creates an empty Credentials.
func NewCredentials() *Credentials {
	return &Credentials{
		accounts: make(map[string]auth.Account),
		byMail:   make(map[string]auth.Authentication),
	}
}

// Accounts returns c as an auth.AccountRepository.
func (c *Credentials) Accounts() auth.AccountRepository { return accountRepo{c} }

// Authentications returns c as an auth.AuthenticationRepository.
func (c *Credentials) Authentications() auth.AuthenticationRepository { return authnRepo{c} }

// WithTx implements auth.Transactor.
func (c *Credentials) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	c.mu.Lock()
	accounts := maps.Clone(c.accounts)
	byMail := maps.Clone(c.byMail)
	c.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		c.mu.Lock()
		c.accounts = accounts
		c.byMail = byMail
		c.mu.Unlock()
		return err
	}
	return nil
}

// AccountCount returns the number of stored accounts.
func (c *Credentials) AccountCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.accounts)
}

// DeleteAccount removes an account and, like the durable schema's cascade,
// its authentication.
func (c *Credentials) DeleteAccount(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.accounts, accountID)
	for mailAddr, a := range c.byMail {
		if a.AccountID == accountID {
			delete(c.byMail, mailAddr)
		}
	}
}

// AuthenticationByMail returns the stored authentication for mail.
func (c *Credentials) AuthenticationByMail(mailAddr string) (auth.Authentication, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.byMail[mailAddr]
	return a, ok
}

type accountRepo struct{ c *Credentials }

func (r accountRepo) Get(_ context.Context, id string) (*auth.Account, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	a, ok := r.c.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &a, nil
}

func (r accountRepo) Create(_ context.Context, account *auth.Account) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.accounts[account.ID] = *account
	return nil
}

type authnRepo struct{ c *Credentials }

func (r authnRepo) GetByMail(_ context.Context, mailAddr string) (*auth.Authentication, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	a, ok := r.c.byMail[mailAddr]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &a, nil
}

func (r authnRepo) Create(_ context.Context, a *auth.Authentication) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.FailCreateAuthentication; err != nil {
		r.c.FailCreateAuthentication = nil
		return err
	}
	if _, dup := r.c.byMail[a.Mail]; dup {
		return auth.ErrDuplicateMail
	}
	r.c.byMail[a.Mail] = *a
	return nil
}

func (r authnRepo) UpdatePassword(_ context.Context, accountID, mailAddr, passwordHash string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	a, ok := r.c.byMail[mailAddr]
	if !ok || a.AccountID != accountID {
		return auth.ErrNotFound
	}
	a.PasswordHash = passwordHash
	r.c.byMail[mailAddr] = a
	return nil
}

// Outbox records sent messages. It implements auth.Mailer.
type Outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

// Send records msg.
func (o *Outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (o *Outbox) Messages() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mail.Message(nil), o.sent...)
}

// Last returns the most recent message.
func (o *Outbox) Last() (mail.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return mail.Message{}, false
	}
	return o.sent[len(o.sent)-1], true
}

// Sequence is an id.Source that returns its ids in order and then panics.
type Sequence struct {
	mu  sync.Mutex
	ids []string
}

// NewSequence creates a Sequence.
func NewSequence(ids ...string) *Sequence {
	return &Sequence{ids: ids}
}

// New returns the next id.
func (s *Sequence) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		panic("authtest: id sequence exhausted")
	}
	next := s.ids[0]
	s.ids = s.ids[1:]
	return next
}

// CountingHasher wraps an auth.PasswordHasher and counts the password
// stretches performed through it.
type CountingHasher struct {
	Hasher auth.PasswordHasher

	mu        sync.Mutex
	stretches int
}

func (h *CountingHasher) add() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stretches++
}

// Hash implements auth.PasswordHasher.
func (h *CountingHasher) Hash(password, salt string) string {
	h.add()
	return h.Hasher.Hash(password, salt)
}

// Verify implements auth.PasswordHasher.
func (h *CountingHasher) Verify(password, salt, hash string) bool {
	h.add()
	return h.Hasher.Verify(password, salt, hash)
}

// Burn implements auth.PasswordHasher.
func (h *CountingHasher) Burn(password string) {
	h.add()
	h.Hasher.Burn(password)
}

// Stretches returns the count since creation or the last Reset.
func (h *CountingHasher) Stretches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stretches
}

// Reset zeroes the count.
func (h *CountingHasher) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stretches = 0
}
