// ABOUTME: Entry point for coven-chime, the custom new-mail chime service
// ABOUTME: Cobra root command with serve, init, useradd, token, health and classify

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chime/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                              _     _
  ___ _____   _____ _ __         ___| |__ (_)_ __ ___   ___
 / __/ _ \ \ / / _ \ '_ \ _____ / __| '_ \| | '_ ' _ \ / _ \
| (_| (_) \ V /  __/ | | |_____| (__| | | | | | | | | |  __/
 \___\___/ \_/ \___|_| |_|      \___|_| |_|_|_| |_| |_|\___|
`

// configPathFlag overrides getConfigPath when set.
var configPathFlag string

// getConfigPath returns the path to the chime config file.
// Priority: --config > COVEN_CHIME_CONFIG env var > XDG_CONFIG_HOME/coven/chime.yaml > ~/.config/coven/chime.yaml
func getConfigPath() string {
	if configPathFlag != "" {
		return configPathFlag
	}
	if envPath := os.Getenv("COVEN_CHIME_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chime.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chime.yaml")
}

// getDataPath returns the path to the coven-chime data directory.
// Priority: XDG_DATA_HOME/coven-chime > ~/.local/share/coven-chime
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven-chime")
}

// loadConfig loads the config file selected by getConfigPath.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coven-chime",
		Short: "Custom new-mail chime service",
		Long: `coven-chime lets webmail users upload their own new-mail sound.

It stores one sound per user, serves it back with caching, and ships a
browser script that swaps the host's built-in chime for the uploaded file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPathFlag, "config", "",
		"Path to config file (default: ~/.config/coven/chime.yaml)")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newUserAddCmd(),
		newTokenCmd(),
		newHealthCmd(),
		newClassifyCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
