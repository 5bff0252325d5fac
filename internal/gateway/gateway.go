// ABOUTME: Gateway orchestrator wiring store, auth, hub, and the HTTP server
// ABOUTME: Owns startup, readiness, and graceful shutdown of the whole process

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guildhouse/chat-gateway/internal/auth"
	"github.com/guildhouse/chat-gateway/internal/config"
	"github.com/guildhouse/chat-gateway/internal/hub"
	"github.com/guildhouse/chat-gateway/internal/store"
)

// Gateway orchestrates the chat-gateway server components: the SQLite message
// store, handshake authentication, the coordination hub, and the HTTP server
// carrying the websocket and REST surfaces.
type Gateway struct {
	config     *config.Config
	store      store.MessageStore
	auth       auth.SessionAuthenticator
	hub        *hub.Hub
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates the message store from config, honoring the
// CHATGW_DB_PATH environment override.
func initStore(cfg *config.Config) (store.MessageStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHATGW_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initAuthenticator selects the handshake authenticator: JWT when a secret is
// configured, pass-through otherwise.
func initAuthenticator(cfg *config.Config, logger *slog.Logger) (auth.SessionAuthenticator, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth disabled - no jwt_secret configured, credentials are taken as user ids")
		return auth.Anonymous{}, nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info("JWT handshake auth enabled")
	return verifier, nil
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	authenticator, err := initAuthenticator(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	g := &Gateway{
		config: cfg,
		store:  s,
		auth:   authenticator,
		hub:    hub.New(cfg, s, authenticator, logger),
		logger: logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// routes assembles the HTTP surface.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	r.Get("/ws", g.hub.ServeWS)
	r.Get("/api/threads/{threadID}/messages", g.handleThreadMessages)

	return r
}

// Handler exposes the assembled HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context: the run context is
// already canceled by the time shutdown starts.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, tears down live connections, and closes
// the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.hub.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the process is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness along with the live connection count.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.Messages(r.Context(), "health|probe", time.Now(), 1); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", g.hub.Registry().Len())
}
