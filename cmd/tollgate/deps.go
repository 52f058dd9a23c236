// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"net/http"

	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/mail"
	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/internal/pubsub"
	"github.com/tollgate/tollgate/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// SSMEnvLoader exports Parameter Store values into the environment.
	// Default: loadSSMEnvs
	SSMEnvLoader func(ctx context.Context) error

	// StoreOpener connects to Postgres and Redis.
	// Default: store.Open
	StoreOpener func(ctx context.Context, opts store.Options) (*store.Handle, error)

	// SenderFactory builds the mail transport.
	// Default: newSender
	SenderFactory func(ctx context.Context, cfg *config.Config) (mail.Sender, error)

	// HTTPServerFactory creates the API server.
	// Default: web.NewServer
	HTTPServerFactory func(addr string, handler http.Handler) HTTPServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// ListenDeps contains injectable dependencies for the listen command.
type ListenDeps struct {
	// SSMEnvLoader exports Parameter Store values into the environment.
	// Default: loadSSMEnvs
	SSMEnvLoader func(ctx context.Context) error

	// BrokerFactory connects to the pub/sub broker. The returned close
	// function releases it.
	// Default: a Redis client on redis_primary_url
	BrokerFactory func(ctx context.Context, cfg *config.Config) (pubsub.Broker, func() error, error)
}

// HTTPServer interface wraps the methods used from web.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
