// ABOUTME: Gateway orchestrator that wires the store, translator and relay behind one HTTP server
// ABOUTME: Manages the listener, WebSocket sessions and graceful shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluentroot/fluent-gateway/internal/auth"
	"github.com/fluentroot/fluent-gateway/internal/config"
	"github.com/fluentroot/fluent-gateway/internal/conversation"
	"github.com/fluentroot/fluent-gateway/internal/dedupe"
	"github.com/fluentroot/fluent-gateway/internal/reply"
	"github.com/fluentroot/fluent-gateway/internal/store"
	"github.com/fluentroot/fluent-gateway/internal/telemetry"
	"github.com/fluentroot/fluent-gateway/internal/translate"
)

// Options carries optional collaborators for New.
type Options struct {
	// Telemetry supplies the tracer and meter. Nil uses no-op providers.
	Telemetry *telemetry.Providers

	// Engine overrides the engine selected by translation.engine.
	Engine translate.Engine

	// Store overrides the SQLite store opened from database.path.
	Store store.Store
}

// Gateway orchestrates the fluent-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *conversation.Registry
	relay      *conversation.Relay
	translator *translate.Adapter
	issuer     *auth.JWTIssuer // nil when auth is disabled
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	// dedupe guards client supplied turn ids
	dedupe *dedupe.Cache

	// sessions is canceled at shutdown so open WebSocket sessions unwind;
	// hijacked connections are not tracked by http.Server.Shutdown.
	sessions       context.Context
	cancelSessions context.CancelFunc
	active         sync.WaitGroup
}

// initStore opens the SQLite store at the configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a gateway from cfg. The caller starts it with Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	providers := opts.Telemetry
	if providers == nil {
		providers = telemetry.Noop()
	}

	engine := opts.Engine
	if engine == nil {
		var err error
		engine, err = translate.NewEngine(ctx, translate.EngineConfig{
			Engine:      cfg.Translation.Engine,
			URL:         cfg.Translation.URL,
			APIKey:      cfg.Translation.APIKey,
			Model:       cfg.Translation.Model,
			HTTPTimeout: cfg.Translation.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating translation engine: %w", err)
		}
	}

	s := opts.Store
	if s == nil {
		var err error
		s, err = initStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	gw := &Gateway{
		config:   cfg,
		store:    s,
		registry: conversation.NewRegistry(cfg.Relay.BroadcastScope, logger),
		dedupe:   dedupe.New(cfg.Relay.DedupeTTL, cfg.Relay.DedupeSize),
		logger:   logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect, matching the CORS policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	gw.sessions, gw.cancelSessions = context.WithCancel(context.Background())

	gw.translator = translate.NewAdapter(engine, translate.Options{
		Timeout:          cfg.Translation.Timeout,
		BreakerThreshold: cfg.Translation.BreakerThreshold,
		BreakerCooldown:  cfg.Translation.BreakerCooldown,
		Logger:           logger,
		Meter:            providers.Meter,
		Tracer:           providers.Tracer,
	})

	gw.relay = conversation.NewRelay(s, reply.NewGenerator(gw.translator), gw.registry, conversation.RelayOptions{
		PersistTimeout: cfg.Relay.PersistTimeout,
		ErrorFrames:    cfg.Relay.ErrorFrames,
		Dedupe:         gw.dedupe,
		Logger:         logger,
		Meter:          providers.Meter,
		Tracer:         providers.Tracer,
	})

	if cfg.Auth.JWTSecret != "" {
		gw.issuer = auth.NewJWTIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
		gw.logger.Info("JWT auth enabled")
	} else {
		gw.logger.Warn("auth disabled - no jwt_secret configured")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway configured",
		"translation_engine", gw.translator.EngineName(),
		"broadcast_scope", cfg.Relay.BroadcastScope,
		"database", cfg.Database.Path,
	)

	return gw, nil
}

// Run listens on server.http_addr and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The serve context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, ends open relay sessions, waits for
// them up to ctx's deadline and then releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.cancelSessions()
	if !g.waitSessions(ctx) {
		g.logger.Warn("relay sessions still open at shutdown deadline")
	}

	g.registry.Close()
	g.dedupe.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// waitSessions reports whether every relay session finished before ctx ended.
func (g *Gateway) waitSessions(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", g.registry.Len())
}
