// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/apperr"
)

// AssertErrorType asserts the status and client code err is presented
// with.
func AssertErrorType(t testing.TB, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	got := apperr.Classify(err)
	assert.Equal(t, status, got.Status, "status of %q", err)
	assert.Equal(t, code, got.Code, "client code of %q", err)
}

// AssertUnexpected asserts that err is hidden from clients behind the
// unexpected code.
func AssertUnexpected(t testing.TB, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperr.IsUnexpected(err), "expected %q to be unexpected", err)
}

// AssertErrorCode asserts the internal oops code on err.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	oopsErr := requireOops(t, err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err carries every key/value pair in kv.
func AssertErrorContext(t testing.TB, err error, kv ...any) {
	t.Helper()
	require.Zero(t, len(kv)%2, "context pairs must be balanced")
	ctx := requireOops(t, err).Context()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		require.True(t, ok, "context key %v is not a string", kv[i])
		if assert.Contains(t, ctx, key) {
			assert.Equal(t, kv[i+1], ctx[key], "context %q", key)
		}
	}
}

func requireOops(t testing.TB, err error) oops.OopsError {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	return oopsErr
}
