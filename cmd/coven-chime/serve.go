// ABOUTME: serve subcommand: loads config, prints the banner and runs the server
// ABOUTME: Blocks until SIGINT/SIGTERM, then shuts down gracefully

package main

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-chime/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chime server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Sounds:    %s\n", cfg.Sounds.StorageDir)

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	}
	if cfg.Sounds.Debug {
		yellow.Fprintln(out, "    ! sound debug logging enabled")
	}
	fmt.Fprintln(out)

	logger.Info("starting coven-chime",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(cmd.Context())
}
