// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package auth implements account signup, signin, and password reset.
//
// # Domain Types
//
// Account and Authentication live in the durable credential store.
// ProvisionalSession, Session, and PasswordResetCode live in the ephemeral
// session store and expire by TTL. Build them with their constructors so
// validation runs before anything is persisted:
//   - NewAccount - an account whose name and display name default to its id
//   - NewProvisionalAuthentication - credentials awaiting mail confirmation
//   - NewSession - a signed-in session for an account
//
// # Service
//
// Service orchestrates the stores, the mailer, and the transaction runner.
// Operations that create or change credentials run inside a single
// transaction; the session store is written inside that scope but is not
// transactional itself.
package auth
