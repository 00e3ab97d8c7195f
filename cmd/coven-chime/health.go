// ABOUTME: health subcommand: probes a running server's health endpoints
// ABOUTME: Exits non-zero when the server is down or not ready

package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var (
		ready bool
		addr  string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `Query /health (or /health/ready with --ready) on the configured
HTTP address and report the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.Server.HTTPAddr
			}
			return runHealth(cmd, healthURL(addr, ready))
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "Check readiness (database reachable) instead of liveness")
	cmd.Flags().StringVar(&addr, "addr", "", "Server address (default: server.http_addr from config)")
	return cmd
}

// healthURL builds the probe URL. addr may be host:port or a full base URL.
func healthURL(addr string, ready bool) string {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	if ready {
		return base + "/health/ready"
	}
	return base + "/health"
}

func runHealth(cmd *cobra.Command, url string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "healthy")
	return nil
}
