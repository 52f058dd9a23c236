// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package apperr defines the error codes exposed to API clients and the
// mapping from those codes to HTTP statuses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/samber/oops"
)

// Error codes returned in the response envelope.
const (
	CodeBadRequest             = "common/bad_request"
	CodeUnauthorized           = "common/unauthorized"
	CodeForbidden              = "common/forbidden"
	CodeNotFound               = "common/not_found"
	CodeUnexpected             = "common/unexpected"
	CodeInvalidSession         = "auth/invalid_session"
	CodeInvalidEmailOrPassword = "auth/invalid_email_or_password"
)

// BadRequest creates an error for malformed or invalid input.
func BadRequest(message string) error {
	return oops.Code(CodeBadRequest).
		Public(message).
		Errorf("bad request: %s", message)
}

// Unauthorized creates an error for a request lacking credentials.
func Unauthorized(message string) error {
	return oops.Code(CodeUnauthorized).
		Public(message).
		Errorf("unauthorized: %s", message)
}

// Forbidden creates an error for a request refused by policy.
func Forbidden(message string) error {
	return oops.Code(CodeForbidden).
		Public(message).
		Errorf("forbidden: %s", message)
}

// NotFound creates an error for a missing resource.
func NotFound(message string) error {
	return oops.Code(CodeNotFound).
		Public(message).
		Errorf("not found: %s", message)
}

// InvalidSession creates an error for a required session that did not resolve.
func InvalidSession() error {
	return oops.Code(CodeInvalidSession).
		Public("invalid session").
		Errorf("invalid session")
}

// InvalidEmailOrPassword creates the credential mismatch error. The same
// error is used for unknown mail and wrong password.
func InvalidEmailOrPassword() error {
	return oops.Code(CodeInvalidEmailOrPassword).
		Public("invalid email or password").
		Errorf("invalid email or password")
}

// Unexpected wraps an infrastructure failure or broken invariant.
func Unexpected(err error) error {
	if err == nil {
		err = errors.New("unexpected error")
	}
	return oops.Code(CodeUnexpected).Wrap(err)
}

// Unexpectedf creates an unexpected error from a format string.
func Unexpectedf(format string, args ...any) error {
	return oops.Code(CodeUnexpected).Errorf(format, args...)
}

// Classified is an error reduced to what a client may see.
type Classified struct {
	Status  int
	Code    string
	Message string
}

// Classify maps err onto the response taxonomy. Errors without a known code
// are unexpected and carry no message.
func Classify(err error) Classified {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return Classified{Status: http.StatusInternalServerError, Code: CodeUnexpected}
	}

	var c Classified
	switch oopsErr.Code() {
	case CodeBadRequest:
		c = Classified{Status: http.StatusBadRequest, Code: CodeBadRequest}
	case CodeUnauthorized:
		c = Classified{Status: http.StatusUnauthorized, Code: CodeUnauthorized}
	case CodeForbidden:
		c = Classified{Status: http.StatusForbidden, Code: CodeForbidden}
	case CodeNotFound:
		c = Classified{Status: http.StatusNotFound, Code: CodeNotFound}
	case CodeInvalidSession:
		c = Classified{Status: http.StatusBadRequest, Code: CodeInvalidSession}
	case CodeInvalidEmailOrPassword:
		c = Classified{Status: http.StatusForbidden, Code: CodeInvalidEmailOrPassword}
	default:
		return Classified{Status: http.StatusInternalServerError, Code: CodeUnexpected}
	}

	c.Message = oopsErr.Public()
	return c
}

// Status returns the HTTP status for err.
func Status(err error) int {
	return Classify(err).Status
}

// IsUnexpected reports whether err classifies as unexpected.
func IsUnexpected(err error) bool {
	return Classify(err).Code == CodeUnexpected
}
