// Package api is the local HTTP API the shop's web UI talks to while
// `till serve` runs: checkout, history, sync and printing.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcus/till/internal/checkout"
	"github.com/marcus/till/internal/connectivity"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/offline"
)

// Config holds the listener settings.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
}

// Printer is the connection side of the printer manager.
type Printer interface {
	Connect(ctx context.Context) error
	Connected() bool
	DeviceName() string
}

// Deps are the components the handlers drive. Remote and Printer may be nil.
type Deps struct {
	Queue    *offline.Manager
	Checkout *checkout.Service
	Probe    connectivity.Probe
	Remote   offline.Lister
	Printer  Printer
	Shop     models.ShopMeta
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server is the HTTP API server.
type Server struct {
	config Config
	deps   Deps
	log    *slog.Logger
	http   *http.Server
	addr   string
}

// NewServer creates a Server with the given config and components.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Queue == nil || deps.Checkout == nil || deps.Probe == nil {
		return nil, errors.New("api: queue, checkout and probe are required")
	}
	s := &Server{config: cfg, deps: deps, log: deps.Logger}
	if s.log == nil {
		s.log = slog.Default()
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server", "err", err)
		}
	}()

	s.log.Info("api: listening", "addr", s.addr)
	return nil
}

// Addr returns the bound address once Start has returned.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
