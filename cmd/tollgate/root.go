// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Tollgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tollgate",
		Short: "Tollgate - authentication and realtime channel gateway",
		Long: `Tollgate serves mail-verified signup, signin, and password reset,
and bridges pub/sub channels to browsers over WebSocket and SSE.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewListenCmd())
	cmd.AddCommand(NewGenAuthRecordCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
