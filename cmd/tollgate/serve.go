// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/auth/postgres"
	"github.com/tollgate/tollgate/internal/auth/redisstore"
	"github.com/tollgate/tollgate/internal/awsx"
	"github.com/tollgate/tollgate/internal/channel"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/mail"
	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/internal/pubsub"
	"github.com/tollgate/tollgate/internal/store"
	"github.com/tollgate/tollgate/internal/web"
)

const (
	serviceName      = "tollgate"
	readinessTimeout = 2 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway. Settings are read from the config file, the
environment (upper-case key names, e.g. DATABASE_URL), and flags. When
SSM_ENVS_PATH is set, parameters under that path are exported into the
environment first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().Int("listen-port", defaults.ListenPort, "API listen port on all interfaces")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("mail-transport", defaults.MailTransport, "mail transport (ses or log)")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.LogLevel, "minimum log level")
	cmd.Flags().Bool("log-color", false, "colorize levels in text logs")

	return cmd
}

// runServeWithDeps runs the gateway until a signal arrives or a server
// fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.SSMEnvLoader == nil {
		deps.SSMEnvLoader = loadSSMEnvs
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = store.Open
	}
	if deps.SenderFactory == nil {
		deps.SenderFactory = newSender
	}
	if deps.HTTPServerFactory == nil {
		deps.HTTPServerFactory = func(addr string, handler http.Handler) HTTPServer {
			return web.NewServer(addr, handler)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	if err := deps.SSMEnvLoader(ctx); err != nil {
		return fmt.Errorf("failed to load SSM parameters: %w", err)
	}

	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.SetDefault(serviceName, version, cfg.Logging())
	logger.Info("starting gateway",
		"listen_addr", cfg.ListenAddr(),
		"mail_transport", cfg.MailTransport,
	)

	handle, err := deps.StoreOpener(ctx, cfg.Store())
	if err != nil {
		return fmt.Errorf("failed to connect to stores: %w", err)
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			logger.Warn("error closing stores", "error", closeErr)
		}
	}()

	logger.Info("connected to stores")

	obsServer := deps.ObservabilityServerFactory(cfg.MetricsAddr, observability.PingReadiness(handle.Ping, readinessTimeout))
	metrics := obsServer.Metrics()

	sender, err := deps.SenderFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up mail transport: %w", err)
	}

	svc, err := auth.NewService(auth.Deps{
		Accounts:        postgres.NewAccountRepository(handle),
		Authentications: postgres.NewAuthenticationRepository(handle),
		Sessions:        redisstore.New(handle.Primary(), handle.Reader()),
		Mailer:          mail.NewInstrumented(sender, metrics),
		Tx:              handle,
		Stretcher:       auth.NewStretcher(cfg.AuthPepper, cfg.AuthStretchCount),
		Recorder:        metrics,
	}, cfg.Auth())
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	bridge := channel.New(pubsub.NewRedis(handle.Primary(), handle.Reader()), channel.WithMetrics(metrics))

	csrf, err := web.NewCSRF(cfg.CSRFAllowSiteHosts, cfg.CSRFAllowXFrom)
	if err != nil {
		return fmt.Errorf("invalid csrf settings: %w", err)
	}

	router := web.NewRouter(svc, bridge, web.Options{
		Version:          version,
		BuildTimestamp:   date,
		CSRF:             csrf,
		Metrics:          metrics,
		RememberMeMaxAge: cfg.RememberMeMaxAge(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	obsStarted := false
	if cfg.MetricsAddr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		obsStarted = true
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	httpServer := deps.HTTPServerFactory(cfg.ListenAddr(), router)
	httpErrChan, err := httpServer.Start()
	if err != nil {
		if obsStarted {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop observability server during cleanup", "error", stopErr)
			}
		}
		return fmt.Errorf("failed to start http server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, httpErrChan, "http")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gateway started")
	logger.Info("gateway ready", "addr", httpServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsStarted {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// loadSSMEnvs exports the parameters under SSM_ENVS_PATH, if set.
func loadSSMEnvs(ctx context.Context) error {
	path := os.Getenv(config.SSMEnvsPathVar)
	if path == "" {
		return nil
	}

	awsCfg, err := awsx.LoadConfig(ctx, awsx.Options{Profile: os.Getenv("AWS_PROFILE")})
	if err != nil {
		return err
	}
	client := config.NewSSMClient(awsCfg, os.Getenv("SSM_ENDPOINT_URL"))
	n, err := config.LoadSSMEnvs(ctx, client, path, nil)
	if err != nil {
		return err
	}
	slog.Info("loaded SSM parameters", "path", path, "count", n)
	return nil
}

// newSender builds the configured mail transport.
func newSender(ctx context.Context, cfg *config.Config) (mail.Sender, error) {
	if cfg.MailTransport == config.MailTransportLog {
		return mail.NewLogSender(nil), nil
	}
	awsCfg, err := awsx.LoadConfig(ctx, awsx.Options{Profile: cfg.AWSProfile})
	if err != nil {
		return nil, err
	}
	return mail.NewSESSender(awsCfg, cfg.SESEndpointURL), nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context if an error occurs.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
