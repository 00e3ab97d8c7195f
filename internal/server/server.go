// ABOUTME: Server orchestrator that wires store, sound service and web UI
// ABOUTME: Runs the HTTP server, an optional gRPC health service and tailscale listeners

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/coven-chime/internal/auth"
	"github.com/2389/coven-chime/internal/chime"
	"github.com/2389/coven-chime/internal/config"
	"github.com/2389/coven-chime/internal/i18n"
	"github.com/2389/coven-chime/internal/metrics"
	"github.com/2389/coven-chime/internal/sound"
	"github.com/2389/coven-chime/internal/store"
	"github.com/2389/coven-chime/internal/throttle"
	"github.com/2389/coven-chime/internal/web"
)

// ServiceName is the gRPC health service name reported by this server.
const ServiceName = "coven.chime"

// SweepInterval is how often expired sessions are purged.
const SweepInterval = 15 * time.Minute

// Login throttling: failed attempts allowed per username and address.
const (
	LoginFailureLimit  = 5
	LoginFailureWindow = 15 * time.Minute
	loginMaxKeys       = 10000
)

// Server orchestrates the coven-chime components.
type Server struct {
	config      *config.Config
	store       store.Store
	sounds      *sound.Service
	web         *web.Handler
	metrics     *metrics.Metrics
	logins      *throttle.Limiter
	handler     http.Handler
	httpServer  *http.Server
	grpcServer  *grpc.Server
	health      *health.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore creates and returns a store based on config.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	s, err := store.NewSQLiteStoreWithLogger(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initVerifier returns a bearer token verifier, or nil when no secret is set.
func initVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Info("bearer tokens disabled - no jwt_secret configured")
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	return v, nil
}

// policyFromConfig overlays configured classifier settings on the default policy.
func policyFromConfig(c config.ChimeConfig) chime.Policy {
	return chime.DefaultPolicy().Override(c.Keywords, c.AssetFolders, c.MinSize)
}

// createGRPCServer creates a gRPC server exposing the standard health service.
func createGRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

// New creates a new Server instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	verifier, err := initVerifier(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	bundle, err := i18n.Load()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("loading translations: %w", err)
	}

	srv := &Server{
		config: cfg,
		store:  s,
		logger: logger.With("component", "server"),
	}

	var opts []sound.Option
	if cfg.Metrics.Enabled {
		srv.metrics = metrics.New(prometheus.NewRegistry())
		opts = append(opts, sound.WithRecorder(srv.metrics))
	}
	srv.sounds = sound.NewService(cfg.Sounds, s, logger, opts...)
	srv.logins = throttle.New(LoginFailureLimit, LoginFailureWindow, loginMaxKeys)

	srv.web = web.New(s, srv.sounds, auth.NewAuthenticator(s, verifier), bundle, web.Config{
		BaseURL:         cfg.Web.BaseURL,
		SessionDuration: cfg.Auth.SessionDuration,
		Policy:          policyFromConfig(cfg.Chime),
		Logins:          srv.logins,
		Logger:          logger,
	})

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /health/ready", srv.handleReady)

	if srv.metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, srv.metrics.Handler())
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	srv.web.RegisterRoutes(mux)

	var handler http.Handler = mux
	if srv.metrics != nil {
		handler = instrumentMux(srv.metrics, mux)
	}
	srv.handler = requestLogger(logger.With("component", "http"), handler)

	if cfg.Server.GRPCAddr != "" || cfg.Tailscale.Enabled {
		srv.grpcServer, srv.health = createGRPCServer()
	}

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// instrumentMux labels request metrics with the matched route pattern.
func instrumentMux(m *metrics.Metrics, mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		m.Instrument(pattern, mux).ServeHTTP(w, r)
	})
}

// setupTCPListeners creates standard TCP listeners. grpcLn is nil when the
// health service is disabled.
func (s *Server) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	s.logger.Info("starting server",
		"http_addr", s.config.Server.HTTPAddr,
		"grpc_addr", s.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (s *Server) warnIgnoredAddresses() {
	if s.config.Server.GRPCAddr != "" || s.config.Server.HTTPAddr != "" {
		s.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", s.config.Server.GRPCAddr,
			"http_addr", s.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (s *Server) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if s.config.Tailscale.Enabled {
		s.warnIgnoredAddresses()
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning the error channel.
func (s *Server) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			s.logger.Info("gRPC health service listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (s *Server) Run(ctx context.Context) error {
	grpcListener, httpListener, err := s.setupListeners(ctx)
	if err != nil {
		return err
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go s.sweepLoop(sweepCtx)

	errCh := s.startServers(grpcListener, httpListener)
	serverErr := s.waitForShutdownSignal(ctx, errCh)
	stopSweep()

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// sweepLoop periodically purges expired sessions and refreshes health status.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one maintenance pass.
func (s *Server) sweep(ctx context.Context) {
	if err := s.store.DeleteExpiredSessions(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("failed to delete expired sessions", "error", err)
	}
	s.updateHealth(ctx)
}

// updateHealth mirrors database reachability into the gRPC health service.
func (s *Server) updateHealth(ctx context.Context) {
	if s.health == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-chime", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet server and returns listeners on the tailnet.
func (s *Server) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	httpLn, err = s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}

	if s.grpcServer != nil {
		grpcLn, err = s.tsnetServer.Listen("tcp", ":50051")
		if err != nil {
			_ = httpLn.Close()
			_ = s.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all servers and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.shutdownGRPCServer(ctx)

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	s.logins.Close()
	errs = appendCloseError(errs, "store close", s.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
