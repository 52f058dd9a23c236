// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tollgate/tollgate/internal/apperr"
	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/pkg/errutil"
)

// statusOK is the body of every successful command.
type statusOK struct {
	Status string `json:"status"`
}

var ok = statusOK{Status: "OK"}

// errorEnvelope is the body of every failed request.
type errorEnvelope struct {
	Status  int    `json:"status"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

// presentError renders err as an error envelope. Unexpected errors are
// logged with their full context and reach the client without detail.
func presentError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	c := apperr.Classify(err)
	if c.Code == apperr.CodeUnexpected {
		errutil.LogErrorContext(ctx, logger, "request failed", err)
		c.Message = http.StatusText(http.StatusInternalServerError)
	} else {
		logger.WarnContext(ctx, "request rejected", "type", c.Code, "error", err)
	}

	writeJSON(w, c.Status, errorEnvelope{
		Status:  c.Status,
		Type:    c.Code,
		Message: c.Message,
	})
}

// decode reads a JSON request body into v and validates it.
func decode(r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(nil, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.BadRequest("request body too large")
		case errors.Is(err, io.EOF):
			return apperr.BadRequest("request body is empty")
		default:
			return apperr.BadRequest("malformed request body")
		}
	}
	return auth.Validate(v)
}
