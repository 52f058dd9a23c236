// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const defaultStatusURL = "http://127.0.0.1:8080"

// GatewayStatus is the body of GET /api/v1/status.
type GatewayStatus struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	BuildTimestamp string `json:"build_timestamp"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	url        string
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running gateway",
		Long:  `Query the status endpoint of a running gateway and print its health and version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.url, "url", defaultStatusURL, "base URL of the gateway")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "request timeout")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status, err := queryStatus(cmd.Context(), cfg.url, cfg.timeout)
	if err != nil {
		return err
	}

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(cfg.url, status)
	}

	cmd.Println(output)
	return nil
}

// queryStatus fetches the status document from baseURL.
func queryStatus(ctx context.Context, baseURL string, timeout time.Duration) (*GatewayStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := strings.TrimRight(baseURL, "/") + "/api/v1/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", baseURL, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	var status GatewayStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(url string, status *GatewayStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "GATEWAY\tSTATUS\tVERSION\tBUILT")
	_, _ = fmt.Fprintln(w, "-------\t------\t-------\t-----")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", url, status.Status, status.Version, status.BuildTimestamp)

	_ = w.Flush()
	return sb.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status *GatewayStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}
