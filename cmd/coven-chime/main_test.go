// ABOUTME: Tests for the coven-chime CLI commands and helpers
// ABOUTME: Commands run in-process against temp config and database files

package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chime/internal/auth"
	"github.com/2389/coven-chime/internal/chime"
	"github.com/2389/coven-chime/internal/config"
)

// execute runs the root command with args and stdin, returning stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { configPathFlag = "" })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

// initConfig writes a fresh config into a temp dir and returns its path.
func initConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chime.yaml")
	_, err := execute(t, "", "init", "--config", path, "--data-dir", filepath.Join(dir, "data"))
	require.NoError(t, err)
	return path
}

func TestGetConfigPath(t *testing.T) {
	configPathFlag = ""
	t.Setenv("COVEN_CHIME_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := getConfigPath(); got != "/xdg/coven/chime.yaml" {
		t.Errorf("getConfigPath() = %q, want %q", got, "/xdg/coven/chime.yaml")
	}

	t.Setenv("COVEN_CHIME_CONFIG", "/etc/chime.toml")
	if got := getConfigPath(); got != "/etc/chime.toml" {
		t.Errorf("getConfigPath() = %q, want %q", got, "/etc/chime.toml")
	}

	configPathFlag = "/flag.yaml"
	defer func() { configPathFlag = "" }()
	if got := getConfigPath(); got != "/flag.yaml" {
		t.Errorf("getConfigPath() = %q, want %q", got, "/flag.yaml")
	}
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := getDataPath(); got != "/data/coven-chime" {
		t.Errorf("getDataPath() = %q, want %q", got, "/data/coven-chime")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.With("component", "sound").WithGroup("upload").Info("stored", "bytes", 42)
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INF stored")
	assert.Contains(t, out, " component=sound")
	assert.Contains(t, out, " upload.bytes=42")
	assert.NotContains(t, out, "hidden")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("probe", "ms", 120)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "probe", rec["msg"])
	assert.Equal(t, float64(120), rec["ms"])
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := initConfig(t)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Len(t, cfg.Auth.JWTSecret, 44)
	assert.Equal(t, "user_sounds", filepath.Base(cfg.Sounds.StorageDir))
	assert.Equal(t, config.DefaultMaxBytes, cfg.Sounds.MaxBytes)

	// a second init refuses to overwrite
	_, err = execute(t, "", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "", "init", "--config", path, "--force", "--no-secret",
		"--data-dir", filepath.Join(filepath.Dir(path), "data"), "--grpc-addr", "localhost:50051")
	require.NoError(t, err)
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "localhost:50051", cfg.Server.GRPCAddr)
}

func TestUserAddAndToken(t *testing.T) {
	path := initConfig(t)

	out, err := execute(t, "correct-horse\n", "useradd", "alice", "--config", path, "--password-stdin", "--name", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user alice (id 1)")

	_, err = execute(t, "", "useradd", "alice", "--config", path, "--password", "another-pass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = execute(t, "", "token", "alice", "--config", path)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)

	uid, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(1), uid)
}

func TestToken_UnknownUser(t *testing.T) {
	path := initConfig(t)

	_, err := execute(t, "", "token", "nobody", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUserAdd_Validation(t *testing.T) {
	path := initConfig(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"short password", []string{"useradd", "bob", "--password", "short"}, "at least 8"},
		{"whitespace name", []string{"useradd", "bob smith", "--password", "long-enough"}, "whitespace"},
		{"missing name", []string{"useradd", "--password", "long-enough"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", append(tt.args, "--config", path)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadPassword(t *testing.T) {
	got, err := readPassword(strings.NewReader("s3cret-pass\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", got)

	got, err = readPassword(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		addr  string
		ready bool
		want  string
	}{
		{"localhost:8080", false, "http://localhost:8080/health"},
		{"localhost:8080", true, "http://localhost:8080/health/ready"},
		{"https://chime.example.com/", false, "https://chime.example.com/health"},
	}
	for _, tt := range tests {
		if got := healthURL(tt.addr, tt.ready); got != tt.want {
			t.Errorf("healthURL(%q, %v) = %q, want %q", tt.addr, tt.ready, got, tt.want)
		}
	}
}

func TestHealthCommand(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health":
			_, _ = w.Write([]byte("OK"))
		case r.URL.Path == "/health/ready" && ready.Load():
			_, _ = w.Write([]byte("ready"))
		default:
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	out, err := execute(t, "", "health", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", out)

	ready.Store(false)
	_, err = execute(t, "", "health", "--addr", srv.URL, "--ready")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestClassifyCommand(t *testing.T) {
	input := `[
		{"tag": "audio", "id": "newmail-sound", "controls": true, "width": 300, "height": 40},
		{"tag": "audio", "controls": true, "width": 300, "height": 40, "src": "/media/podcast.mp3"},
		{"tag": "div", "children": [{"tag": "audio", "controls": true, "width": 300, "height": 40,
			"src": "/skins/elastic/sounds/sound.mp3"}]}
	]`
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := execute(t, input, "classify", "--json", "--config", missing)
	require.NoError(t, err)

	var results []classification
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var c classification
		require.NoError(t, dec.Decode(&c))
		results = append(results, c)
	}
	require.Len(t, results, 3)

	assert.True(t, results[0].Chime)
	assert.Equal(t, string(chime.RuleKeyword), results[0].Rule)
	assert.False(t, results[1].Chime)
	assert.True(t, results[2].Chime)
	assert.Equal(t, string(chime.RuleAssetSrc), results[2].Rule)
	assert.Equal(t, 1, results[2].Nested)
}

func TestClassifyCommand_FlagOverride(t *testing.T) {
	input := `{"tag": "audio", "id": "newmail-sound", "controls": true, "width": 300, "height": 40}`
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := execute(t, input, "classify", "--config", missing, "--keywords", "ding")
	require.NoError(t, err)
	assert.Contains(t, out, "pass")
	assert.Contains(t, out, "audio#newmail-sound")
}

func TestDecodeElements_Errors(t *testing.T) {
	_, err := decodeElements([]byte("  "))
	require.Error(t, err)

	_, err = decodeElements([]byte("[{"))
	require.Error(t, err)
}
