// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tollgate/tollgate/internal/apperr"
	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/channel"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/pkg/errutil"
)

type statusResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	BuildTimestamp string `json:"build_timestamp"`
}

type accountResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type signupRequest struct {
	Mail     string `json:"mail" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupFinishRequest struct {
	Code string `json:"code" validate:"required"`
}

type signinRequest struct {
	Mail       string `json:"mail" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

type forgetPasswordRequest struct {
	Mail string `json:"mail" validate:"required,email"`
}

type resetPasswordRequest struct {
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:         "OK",
		Version:        h.opts.Version,
		BuildTimestamp: h.opts.BuildTimestamp,
	})
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.auth.GetAccount(r.Context(), chi.URLParam(r, "id"), SessionFromContext(r.Context()))
	if err != nil {
		presentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		ID:          account.ID,
		Name:        account.Name,
		DisplayName: account.DisplayName,
	})
}

func (h *handler) authStatus(w http.ResponseWriter, r *http.Request) {
	if SessionFromContext(r.Context()) == nil {
		presentError(w, r, apperr.Forbidden("invalid session"))
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, h.opts.MaxBodyBytes, &req); err != nil {
		presentError(w, r, err)
		return
	}
	if err := h.auth.Signup(r.Context(), req.Mail, req.Password, r.Host); err != nil {
		presentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

// signupFinish accepts the code from the query string, which is how mail
// links arrive, or from a JSON body.
func (h *handler) signupFinish(w http.ResponseWriter, r *http.Request) {
	req := signupFinishRequest{Code: r.URL.Query().Get("code")}
	if req.Code == "" && r.Method == http.MethodPost {
		if err := decode(r, h.opts.MaxBodyBytes, &req); err != nil {
			presentError(w, r, err)
			return
		}
	} else if err := auth.Validate(&req); err != nil {
		presentError(w, r, err)
		return
	}

	sessionID, err := h.auth.SignupFinish(r.Context(), req.Code)
	if err != nil {
		presentError(w, r, err)
		return
	}
	setSessionCookie(w, sessionID, 0)
	writeJSON(w, http.StatusOK, ok)
}

func (h *handler) signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decode(r, h.opts.MaxBodyBytes, &req); err != nil {
		presentError(w, r, err)
		return
	}
	result, err := h.auth.Signin(r.Context(), req.Mail, req.Password, req.RememberMe)
	if err != nil {
		presentError(w, r, err)
		return
	}
	maxAge := h.opts.RememberMeMaxAge
	if !result.RememberMe {
		maxAge = 0
	}
	setSessionCookie(w, result.SessionID, maxAge)
	writeJSON(w, http.StatusOK, ok)
}

func (h *handler) signout(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if err := h.auth.Signout(r.Context(), session.ID); err != nil {
		presentError(w, r, err)
		return
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, ok)
}

func (h *handler) forgetPassword(w http.ResponseWriter, r *http.Request) {
	var req forgetPasswordRequest
	if err := decode(r, h.opts.MaxBodyBytes, &req); err != nil {
		presentError(w, r, err)
		return
	}
	if err := h.auth.ForgetPassword(r.Context(), req.Mail, r.Host); err != nil {
		presentError(w, r, err)
		return
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, ok)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, h.opts.MaxBodyBytes, &req); err != nil {
		presentError(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Code, req.Password); err != nil {
		presentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *handler) subscribeChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	err := h.bridge.ServeEvents(r.Context(), w, channelID)
	switch {
	case err == nil:
	case errors.Is(err, channel.ErrStreamStarted):
		ctx := r.Context()
		errutil.LogErrorContext(ctx, logging.FromContext(ctx), "event stream failed", err)
	default:
		presentError(w, r, err)
	}
}

func (h *handler) publishChannel(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			presentError(w, r, apperr.BadRequest("payload too large"))
			return
		}
		presentError(w, r, apperr.BadRequest("unreadable payload"))
		return
	}
	if err := h.bridge.Publish(r.Context(), chi.URLParam(r, "id"), payload); err != nil {
		presentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *handler) channelSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		logging.FromContext(ctx).DebugContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	if err := h.bridge.ServeSocket(ctx, conn, chi.URLParam(r, "id")); err != nil {
		errutil.LogErrorContext(ctx, logging.FromContext(ctx), "channel bridge failed", err)
	}
}

func newUpgrader(checkOrigin func(*http.Request) bool, subprotocol string) *websocket.Upgrader {
	return &websocket.Upgrader{
		Subprotocols: []string{subprotocol},
		CheckOrigin:  checkOrigin,
	}
}
