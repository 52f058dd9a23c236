// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package web exposes the authentication flows and channel bridge over HTTP
// under /api/v1.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/channel"
	"github.com/tollgate/tollgate/internal/id"
)

// Defaults for Options.
const (
	DefaultRememberMeMaxAge = 10 * 24 * time.Hour
	DefaultMaxBodyBytes     = 1 << 20
)

// AuthService is the authentication API the handlers drive.
type AuthService interface {
	SessionResolver
	Signup(ctx context.Context, mail, password, siteURL string) error
	SignupFinish(ctx context.Context, code string) (string, error)
	Signin(ctx context.Context, mail, password string, rememberMe bool) (*auth.SigninResult, error)
	Signout(ctx context.Context, sessionID string) error
	ForgetPassword(ctx context.Context, mail, siteURL string) error
	ResetPassword(ctx context.Context, code, newPassword string) error
	GetAccount(ctx context.Context, accountID string, session *auth.Session) (*auth.Account, error)
}

// ChannelBridge relays channel traffic to clients.
type ChannelBridge interface {
	ServeSocket(ctx context.Context, conn *websocket.Conn, channelID string) error
	ServeEvents(ctx context.Context, w http.ResponseWriter, channelID string) error
	Publish(ctx context.Context, channelID string, payload []byte) error
}

// RequestRecorder counts API responses.
type RequestRecorder interface {
	RecordRequest(route string, status int)
}

// Options configure the router.
type Options struct {
	Version        string
	BuildTimestamp string
	// CSRF is required.
	CSRF *CSRF
	// Metrics is optional.
	Metrics RequestRecorder
	// IDs generates request and tracking ids. Defaults to id.Random.
	IDs id.Source
	// RememberMeMaxAge is the session cookie lifetime for remember-me
	// signins.
	RememberMeMaxAge time.Duration
	MaxBodyBytes     int64
}

type handler struct {
	auth     AuthService
	bridge   ChannelBridge
	upgrader *websocket.Upgrader
	opts     Options
}

// NewRouter builds the API handler.
func NewRouter(svc AuthService, bridge ChannelBridge, opts Options) http.Handler {
	if opts.IDs == nil {
		opts.IDs = id.Random{}
	}
	if opts.RememberMeMaxAge == 0 {
		opts.RememberMeMaxAge = DefaultRememberMeMaxAge
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	h := &handler{
		auth:     svc,
		bridge:   bridge,
		upgrader: newUpgrader(opts.CSRF.CheckOrigin, channel.Subprotocol),
		opts:     opts,
	}
	sessions := NewSessionBinder(svc)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID(opts.IDs))
	r.Use(Tracking(opts.IDs))
	if opts.Metrics != nil {
		r.Use(countRequests(opts.Metrics))
	}
	r.Use(opts.CSRF.Middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.status)

		r.With(sessions.Optional).Get("/auth/status", h.authStatus)
		r.Post("/auth/signup", h.signup)
		r.Get("/auth/signup/finish", h.signupFinish)
		r.Post("/auth/signup/finish", h.signupFinish)
		r.Post("/auth/signin", h.signin)
		r.Post("/auth/forget_password", h.forgetPassword)
		r.Post("/auth/reset_password", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(sessions.Require)
			r.Get("/account/{id}", h.getAccount)
			r.Post("/auth/signout", h.signout)
			r.Get("/channel/{id}", h.subscribeChannel)
			r.Post("/channel/{id}", h.publishChannel)
			r.Get("/channel/{id}/socket", h.channelSocket)
		})
	})
	return r
}

// countRequests records each response under its chi route pattern.
func countRequests(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			switch {
			case status != 0:
			case websocket.IsWebSocketUpgrade(r):
				status = http.StatusSwitchingProtocols
			default:
				status = http.StatusOK
			}
			rec.RecordRequest(route, status)
		})
	}
}
