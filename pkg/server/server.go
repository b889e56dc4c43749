// Package server provides the gateway's HTTP surface: the API routes, the
// fallback proxy driven by the routing table, and graceful lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/config"
	"arunlabs/synapse/pkg/health"
	"arunlabs/synapse/pkg/models"
	"arunlabs/synapse/pkg/routing"
	"arunlabs/synapse/pkg/telemetry/metrics"
	"arunlabs/synapse/pkg/terminalfeed"
	"arunlabs/synapse/pkg/voices"
)

// Deps wires the server's collaborators.
type Deps struct {
	Config  *config.Config
	Client  *backend.Client
	Table   *routing.Table
	Manager *models.Manager
	Voices  *voices.Library
	Feed    *terminalfeed.Feed
	Health  *health.Aggregator
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Server is the gateway HTTP server.
type Server struct {
	cfg     *config.Config
	client  *backend.Client
	table   *routing.Table
	manager *models.Manager
	voices  *voices.Library
	feed    *terminalfeed.Feed
	health  *health.Aggregator
	metrics *metrics.Collector
	logger  *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New creates a server from its dependencies.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     deps.Config,
		client:  deps.Client,
		table:   deps.Table,
		manager: deps.Manager,
		voices:  deps.Voices,
		feed:    deps.Feed,
		health:  deps.Health,
		metrics: deps.Metrics,
		logger:  logger.With("component", "server"),
	}
}

// Router builds the chi mux with the full route surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	if s.cfg.Server.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Server.CORS.AllowedOrigins,
			AllowedMethods: s.cfg.Server.CORS.AllowedMethods,
			AllowedHeaders: s.cfg.Server.CORS.AllowedHeaders,
			MaxAge:         s.cfg.Server.CORS.MaxAge,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	if s.cfg.Telemetry.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// LLM surface.
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/v1/models", s.handleOpenAIModels)

	// Model lifecycle.
	r.Get("/models", s.handleListModels)
	r.Post("/models/load", s.handleLoadModel)
	r.Post("/models/unload", s.handleUnloadModel)
	r.Get("/models/schema", s.handleProfileSchema)
	r.Get("/models/{model}/profile", s.handleGetProfile)
	r.Put("/models/{model}/profile", s.handlePutProfile)
	r.Patch("/models/{model}/profile", s.handlePatchProfile)
	r.Post("/models/{model}/profile/apply", s.handleApplyProfile)

	// Voice library.
	r.Get("/voices", s.handleListVoices)
	r.Post("/voices", s.handleCreateVoice)
	r.Get("/voices/{voice_id}", s.handleGetVoice)
	r.Post("/voices/{voice_id}/references", s.handleAddReferences)
	r.Delete("/voices/{voice_id}", s.handleDeleteVoice)

	// Speech synthesis (voice resolution happens gateway-side).
	r.Post("/tts/synthesize", s.handleSynthesize)
	r.Post("/tts/stream", s.handleSynthesizeStream)
	r.Post("/tts/interpolate", s.handleInterpolate)
	r.Get("/tts/languages", s.handleListLanguages)

	// Live terminal feed.
	r.Get("/events/terminal", s.handleTerminalFeed)
	r.Get("/events/terminal/stats", s.handleTerminalStats)

	// Everything else (stt, speakers, audio, embeddings, extra routes) is
	// plain proxying driven by the routing table.
	r.NotFound(s.handleProxy)

	return r
}

// Start runs the HTTP server and blocks until ctx is canceled, a shutdown
// signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.ListenAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server", "address", s.cfg.Server.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return s.Shutdown()
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("shutting down gateway server", "timeout", timeout)
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// requestLogger logs each request on completion.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The SSE feed endpoint would log one line per connection lifetime
		// only at disconnect; skip it to keep the feed from echoing itself.
		if r.URL.Path == "/events/terminal" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}
