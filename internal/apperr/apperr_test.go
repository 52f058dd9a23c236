// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package apperr_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/tollgate/tollgate/internal/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "bad request",
			err:         apperr.BadRequest("mail is invalid"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    apperr.CodeBadRequest,
			wantMessage: "mail is invalid",
		},
		{
			name:        "unauthorized",
			err:         apperr.Unauthorized("login required"),
			wantStatus:  http.StatusUnauthorized,
			wantCode:    apperr.CodeUnauthorized,
			wantMessage: "login required",
		},
		{
			name:        "forbidden",
			err:         apperr.Forbidden("nope"),
			wantStatus:  http.StatusForbidden,
			wantCode:    apperr.CodeForbidden,
			wantMessage: "nope",
		},
		{
			name:        "not found",
			err:         apperr.NotFound("account not found"),
			wantStatus:  http.StatusNotFound,
			wantCode:    apperr.CodeNotFound,
			wantMessage: "account not found",
		},
		{
			name:        "invalid session",
			err:         apperr.InvalidSession(),
			wantStatus:  http.StatusBadRequest,
			wantCode:    apperr.CodeInvalidSession,
			wantMessage: "invalid session",
		},
		{
			name:        "invalid credentials",
			err:         apperr.InvalidEmailOrPassword(),
			wantStatus:  http.StatusForbidden,
			wantCode:    apperr.CodeInvalidEmailOrPassword,
			wantMessage: "invalid email or password",
		},
		{
			name:       "plain error",
			err:        errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperr.CodeUnexpected,
		},
		{
			name:       "unexpected hides message",
			err:        apperr.Unexpected(errors.New("secret detail")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperr.CodeUnexpected,
		},
		{
			name:       "internal code is unexpected",
			err:        oops.Code("KV_GET_FAILED").Public("leak").Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperr.CodeUnexpected,
		},
		{
			name:        "wrapped forbidden keeps kind",
			err:         oops.With("operation", "signin").Wrap(apperr.InvalidEmailOrPassword()),
			wantStatus:  http.StatusForbidden,
			wantCode:    apperr.CodeInvalidEmailOrPassword,
			wantMessage: "invalid email or password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apperr.Classify(tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantMessage, got.Message)
			assert.Equal(t, tt.wantStatus, apperr.Status(tt.err))
		})
	}
}

func TestUnexpected_NilCause(t *testing.T) {
	err := apperr.Unexpected(nil)
	assert.Error(t, err)
	assert.True(t, apperr.IsUnexpected(err))
}

func TestUnexpectedf(t *testing.T) {
	err := apperr.Unexpectedf("provisional session %s missing", "abc")
	assert.True(t, apperr.IsUnexpected(err))
	assert.Contains(t, err.Error(), "provisional session abc missing")
}
