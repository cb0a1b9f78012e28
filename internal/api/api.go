// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/api/health"
	"github.com/good-yellow-bee/opswatch/internal/api/status"
	"github.com/good-yellow-bee/opswatch/internal/billing"
	"github.com/good-yellow-bee/opswatch/internal/cases"
	"github.com/good-yellow-bee/opswatch/internal/engine"
	"github.com/good-yellow-bee/opswatch/internal/notifier"
	"github.com/good-yellow-bee/opswatch/internal/signal"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address           string
	RateLimitPerIP    int // anonymous requests per minute per IP
	RateLimitPerActor int // authenticated requests per minute per actor
	WindowMinutes     int // default evaluation window for read endpoints
	Verbose           bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 60
	}
	if c.RateLimitPerActor == 0 {
		c.RateLimitPerActor = 240
	}
	if c.WindowMinutes == 0 {
		c.WindowMinutes = 15
	}
}

// Deps carries the wired services the router serves.
type Deps struct {
	Storage       storage.Storage
	Events        storage.EventStorage
	Counts        *signal.CountsProvider
	Engine        *engine.Engine
	Thresholds    status.ThresholdSource
	BillingStatus *billing.StatusService
	Cases         *cases.Service
	AckTokens     *notifier.AckTokenService
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	deps          Deps
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("evaluation engine is required")
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		deps:          deps,
		healthHandler: health.NewHandler(),
	}

	router := s.setupRouter()

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
