// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/id"
)

// genAuthRecordConfig holds configuration for the gen-auth-record command.
type genAuthRecordConfig struct {
	mail     string
	password string
}

// authRecord is the printed provisioning document.
type authRecord struct {
	Account        *auth.Account        `json:"account"`
	Authentication *auth.Authentication `json:"authentication"`
}

// NewGenAuthRecordCmd creates the gen-auth-record subcommand.
func NewGenAuthRecordCmd() *cobra.Command {
	cfg := &genAuthRecordConfig{}

	cmd := &cobra.Command{
		Use:   "gen-auth-record",
		Short: "Print an account and authentication record for provisioning",
		Long: `Generate a matching account and authentication record, hashed with
the configured auth_pepper and auth_stretch_count, and print them as JSON.
Nothing is written to the database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenAuthRecord(cmd, cfg, id.Random{}, time.Now())
		},
	}

	cmd.Flags().StringVar(&cfg.mail, "mail", "", "mail address")
	cmd.Flags().StringVar(&cfg.password, "password", "", "plain-text password")
	_ = cmd.MarkFlagRequired("mail")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runGenAuthRecord(cmd *cobra.Command, gc *genAuthRecordConfig, ids id.Source, now time.Time) error {
	cfg, err := config.Load(nil, configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.AuthPepper == "" {
		return fmt.Errorf("auth_pepper is required")
	}
	if cfg.AuthStretchCount < 1 {
		return fmt.Errorf("auth_stretch_count must be at least 1, got %d", cfg.AuthStretchCount)
	}

	stretcher := auth.NewStretcher(cfg.AuthPepper, cfg.AuthStretchCount)
	account, authn, err := auth.GenerateAuthenticationRecord(ids, stretcher, now, gc.mail, gc.password)
	if err != nil {
		return fmt.Errorf("failed to generate record: %w", err)
	}

	data, err := json.MarshalIndent(authRecord{Account: account, Authentication: authn}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
