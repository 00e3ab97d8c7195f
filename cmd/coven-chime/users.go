// ABOUTME: useradd and token subcommands for account management
// ABOUTME: Opens the SQLite store directly; the server need not be running

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-chime/internal/auth"
	"github.com/2389/coven-chime/internal/store"
)

// MinPasswordLength is the shortest password useradd accepts.
const MinPasswordLength = 8

// defaultTokenTTL is the lifetime of tokens issued by the token subcommand.
const defaultTokenTTL = 30 * 24 * time.Hour

type userAddOptions struct {
	displayName   string
	password      string
	passwordStdin bool
}

func newUserAddCmd() *cobra.Command {
	opts := &userAddOptions{}
	cmd := &cobra.Command{
		Use:   "useradd USERNAME",
		Short: "Create a login account",
		Long: `Create an account that can sign in to the chime settings page.

The password is read from --password, or from the first line of stdin
with --password-stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.displayName, "name", "", "Display name")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (visible in shell history; prefer --password-stdin)")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

// readPassword returns the first line of r without the trailing newline.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// validateUsername rejects names that cannot be typed into the login form.
func validateUsername(name string) error {
	if name == "" {
		return errors.New("username cannot be empty")
	}
	if len(name) > 64 {
		return errors.New("username exceeds maximum length of 64 characters")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return errors.New("username cannot contain whitespace")
	}
	return nil
}

func runUserAdd(cmd *cobra.Command, opts *userAddOptions, username string) error {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return err
	}

	password := opts.password
	if opts.passwordStdin {
		var err error
		if password, err = readPassword(cmd.InOrStdin()); err != nil {
			return err
		}
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(opts.displayName),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateUser(cmd.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "  ✓ Created user %s (id %d)\n", username, user.ID)
	return nil
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token USERNAME",
		Short: "Issue a bearer token for a user",
		Long: `Print a JWT that authenticates as USERNAME on the upload, sound and
env.js endpoints. Requires auth.jwt_secret in the config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, args[0], ttl)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "Token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, username string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s (required for tokens)", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	user, err := s.GetUserByUsername(cmd.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	token, err := verifier.Generate(user.ID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
