// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package api exposes the local control surface: health, Prometheus
// metrics, queue status, and a manual sync trigger. It binds to loopback
// by default; it is an operator surface, not a public API.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/store"
	"github.com/tomtom215/waypointd/internal/syncer"
)

// EventStats is the slice of the store the status endpoints read.
type EventStats interface {
	CountUnsynced(ctx context.Context) (int, error)
	Stats() store.Stats
}

// Drainer is the slice of the sync coordinator the API drives.
type Drainer interface {
	Drain(ctx context.Context, trigger string) syncer.Summary
	LastSummary() *syncer.Summary
	Draining() bool
}

// Reachability reports the connectivity monitor's current belief.
type Reachability interface {
	Online() bool
}

// BreakerStater exposes the delivery circuit breaker state.
type BreakerStater interface {
	State() gobreaker.State
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration

	RateLimitReqs   int
	RateLimitWindow time.Duration
	CORSOrigins     []string
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8787
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Minute
	}
}

// Server serves the control API.
type Server struct {
	config  Config
	handler *Handler
	srv     *http.Server
}

// New creates the control API server.
func New(cfg Config, stats EventStats, drainer Drainer, reach Reachability, breaker BreakerStater) *Server {
	cfg.applyDefaults()
	return &Server{
		config:  cfg,
		handler: NewHandler(stats, drainer, reach, breaker),
	}
}

// Router builds the Chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", s.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(s.config.RateLimitReqs, s.config.RateLimitWindow))
		}
		r.Get("/status", s.handler.Status)
		r.Get("/status/ws", s.handler.StatusWS)
		r.Post("/sync", s.handler.SyncNow)
	})

	return r
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine until Shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind control API listener on %s: %w", addr, err)
	}

	s.srv = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  s.config.Timeout,
		WriteTimeout: s.config.Timeout,
		IdleTimeout:  2 * s.config.Timeout,
	}

	logging.Info().Str("addr", addr).Msg("Control API listening")

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error().Err(err).Msg("Control API server error")
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
