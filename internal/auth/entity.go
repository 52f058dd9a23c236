// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"time"
)

// Account is a registered user.
type Account struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"max=100"`
	DisplayName string    `json:"display_name" validate:"max=100"`
	CreateTime  time.Time `json:"create_time"`
}

// NewAccount creates an Account whose name and display name are its id.
func NewAccount(id string, now time.Time) (*Account, error) {
	a := &Account{
		ID:          id,
		Name:        id,
		DisplayName: id,
		CreateTime:  now.UTC(),
	}
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Authentication holds the mail credentials bound to an account.
type Authentication struct {
	AccountID    string `json:"account_id" validate:"required"`
	Mail         string `json:"mail" validate:"required,email"`
	Salt         string `json:"salt" validate:"required"`
	PasswordHash string `json:"password" validate:"len=128,hexadecimal,lowercase"`
}

// NewAuthentication binds provisional credentials to an account.
func NewAuthentication(accountID string, p ProvisionalAuthentication) (*Authentication, error) {
	a := &Authentication{
		AccountID:    accountID,
		Mail:         p.Mail,
		Salt:         p.Salt,
		PasswordHash: p.PasswordHash,
	}
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// ProvisionalAuthentication is an Authentication not yet bound to an account.
type ProvisionalAuthentication struct {
	Mail         string `json:"mail" validate:"required,email"`
	Salt         string `json:"salt" validate:"required"`
	PasswordHash string `json:"password" validate:"len=128,hexadecimal,lowercase"`
}

// NewProvisionalAuthentication creates validated provisional credentials.
func NewProvisionalAuthentication(mail, salt, passwordHash string) (*ProvisionalAuthentication, error) {
	p := &ProvisionalAuthentication{
		Mail:         mail,
		Salt:         salt,
		PasswordHash: passwordHash,
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ProvisionalSession is the state awaiting mail confirmation.
type ProvisionalSession struct {
	Code           string                    `json:"code" validate:"required"`
	Authentication ProvisionalAuthentication `json:"authentication"`
}

// Session associates a random identifier with an account.
type Session struct {
	ID         string    `json:"id" validate:"required"`
	Account    Account   `json:"account"`
	CreateTime time.Time `json:"create_time"`
}

// NewSession creates a Session for account.
func NewSession(id string, account Account, now time.Time) (*Session, error) {
	s := &Session{
		ID:         id,
		Account:    account,
		CreateTime: now.UTC(),
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// PasswordResetCode maps a mailed code to the mail address it was issued for.
type PasswordResetCode struct {
	Code string `json:"code" validate:"required"`
	Mail string `json:"mail" validate:"required,email"`
}
