// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/channel"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/id"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/pubsub"
	"github.com/tollgate/tollgate/internal/store"
)

// listenConfig holds configuration for the listen command.
type listenConfig struct {
	channel string
}

// NewListenCmd creates the listen subcommand.
func NewListenCmd() *cobra.Command {
	cfg := &listenConfig{}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Log every message published to a channel",
		Long: `Subscribe to a channel on the pub/sub broker and log every message
until interrupted. Only redis_primary_url is required.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runListenWithDeps(ctx, cmd, cfg, nil, nil)
		},
	}

	cmd.Flags().StringVarP(&cfg.channel, "channel", "c", "", "channel id to listen on")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

// runListenWithDeps logs channel traffic to w until ctx ends. A nil w
// writes to stderr.
func runListenWithDeps(ctx context.Context, cmd *cobra.Command, lc *listenConfig, deps *ListenDeps, w io.Writer) error {
	if deps == nil {
		deps = &ListenDeps{}
	}
	if deps.SSMEnvLoader == nil {
		deps.SSMEnvLoader = loadSSMEnvs
	}
	if deps.BrokerFactory == nil {
		deps.BrokerFactory = newRedisBroker
	}

	if lc.channel == "" {
		return fmt.Errorf("channel is required")
	}
	if err := deps.SSMEnvLoader(ctx); err != nil {
		return fmt.Errorf("failed to load SSM parameters: %w", err)
	}
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Setup(serviceName, version, cfg.Logging(), w)

	broker, closeBroker, err := deps.BrokerFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() {
		if closeErr := closeBroker(); closeErr != nil {
			logger.Warn("error closing broker", "error", closeErr)
		}
	}()

	logger.Info("listening", "channel_id", lc.channel)

	bridge := channel.New(broker)
	err = bridge.Listen(ctx, lc.channel, func(payload []byte) {
		logger.Info("receive message",
			"message_id", id.NewULID(),
			"channel_id", lc.channel,
			"size", len(payload),
			"message", strings.ToValidUTF8(string(payload), "\uFFFD"),
		)
	})
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}
	return nil
}

// newRedisBroker connects to the primary Redis.
func newRedisBroker(_ context.Context, cfg *config.Config) (pubsub.Broker, func() error, error) {
	if cfg.RedisPrimaryURL == "" {
		return nil, nil, fmt.Errorf("redis_primary_url is required")
	}
	opts, err := store.RedisConfig(store.RedisOptions{
		URL:      cfg.RedisPrimaryURL,
		MinIdle:  cfg.RedisMinIdle,
		PoolSize: cfg.RedisMaxSize,
	})
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return pubsub.NewRedis(client, nil), client.Close, nil
}
