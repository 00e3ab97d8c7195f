// ABOUTME: init subcommand: writes a starter config with a random JWT secret
// ABOUTME: Refuses to overwrite an existing file unless --force is given

package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type initOptions struct {
	force    bool
	httpAddr string
	grpcAddr string
	dataDir  string
	noSecret bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new config file",
		Long: `Write a starter configuration to the config path.

A random auth.jwt_secret is generated so the token subcommand works
out of the box. Pass --no-secret to leave bearer tokens disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing config file")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "localhost:8080", "HTTP listen address")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc-addr", "", "gRPC health service address (empty disables it)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Directory for the database and sounds (default: ~/.local/share/coven-chime)")
	cmd.Flags().BoolVar(&opts.noSecret, "no-secret", false, "Do not generate a JWT secret")
	return cmd
}

// generateSecret returns a base64 encoded 32-byte random secret.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// renderConfig produces the YAML written by init.
func renderConfig(opts *initOptions, dataDir, secret string) string {
	var cfg strings.Builder
	cfg.WriteString("# coven-chime configuration\n")
	cfg.WriteString("# Generated by coven-chime init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", opts.httpAddr))
	if opts.grpcAddr != "" {
		cfg.WriteString(fmt.Sprintf("  grpc_addr: %q\n", opts.grpcAddr))
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", filepath.Join(dataDir, "chime.db")))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	if secret != "" {
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", secret))
	}
	cfg.WriteString("  session_duration: \"168h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("sounds:\n")
	cfg.WriteString(fmt.Sprintf("  storage_dir: %q\n", filepath.Join(dataDir, "user_sounds")))
	cfg.WriteString("  max_bytes: 3145728\n")
	cfg.WriteString("  allowed_ext: [mp3, ogg, flac, wav, m4a, aac, opus]\n")
	cfg.WriteString("  debug: false\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString("  level: \"info\"\n")
	cfg.WriteString("  format: \"text\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

func runInit(cmd *cobra.Command, opts *initOptions) error {
	out := cmd.OutOrStdout()
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil && !opts.force {
		return fmt.Errorf("config already exists: %s (use --force to overwrite)", configPath)
	}

	dataDir := opts.dataDir
	if dataDir == "" {
		dataDir = getDataPath()
	}

	var secret string
	if !opts.noSecret {
		var err error
		if secret, err = generateSecret(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// 0600: the file holds the JWT secret
	if err := os.WriteFile(configPath, []byte(renderConfig(opts, dataDir, secret)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "  ✓ Created config: %s\n", configPath)
	green.Fprintf(out, "  ✓ Data directory: %s\n", dataDir)
	fmt.Fprintln(out)
	color.New(color.FgYellow).Fprintln(out, "  Next steps:")
	fmt.Fprintln(out, "    coven-chime useradd alice   # create a login")
	fmt.Fprintln(out, "    coven-chime serve           # start the server")
	return nil
}
