// Package server hosts the node's HTTP surface: the captive
// provisioning portal, health and status endpoints, Prometheus
// metrics, and a WebSocket event feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the payload served on /status and /healthz.
type Status struct {
	Node    string `json:"node"`
	State   string `json:"state"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// StatusFunc reports the node's current status snapshot.
type StatusFunc func() Status

// Server serves the device HTTP endpoints. While the node is in
// provisioning mode every unknown path falls through to the portal
// form, which is what makes phone captive-portal detection pop the
// setup page.
type Server struct {
	addr   string
	hub    *Hub
	status StatusFunc

	portalMu   sync.Mutex
	portal     http.Handler
	portalMode atomic.Bool

	httpServer *http.Server
	listener   net.Listener
	started    time.Time
}

// Option configures the server.
type Option func(*Server)

// WithPortal installs the provisioning portal handler. It only
// receives traffic while portal mode is enabled.
func WithPortal(h http.Handler) Option {
	return func(s *Server) { s.portal = h }
}

// WithStatus installs the status snapshot source.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// New creates the device server listening on addr. metricsHandler is
// mounted at /metrics; pass nil to disable the endpoint.
func New(addr string, hub *Hub, metricsHandler http.Handler, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		hub:  hub,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	if hub != nil {
		mux.HandleFunc("/events", hub.HandleEvents)
	}
	mux.HandleFunc("/", s.handleRoot)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetPortalMode routes unknown paths to the portal form when enabled.
func (s *Server) SetPortalMode(enabled bool) {
	s.portalMode.Store(enabled)
}

// SetPortal swaps the portal handler. The controller installs a fresh
// handler, carrying that session's scanned network list, each time
// provisioning starts.
func (s *Server) SetPortal(h http.Handler) {
	s.portalMu.Lock()
	s.portal = h
	s.portalMu.Unlock()
}

func (s *Server) portalHandler() http.Handler {
	s.portalMu.Lock()
	defer s.portalMu.Unlock()
	return s.portal
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and begins serving.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.started = time.Now()

	if s.hub != nil {
		if err := s.hub.Start(ctx); err != nil {
			ln.Close()
			return err
		}
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[server] serve: %v", err)
		}
	}()

	log.Printf("[server] listening on %s", ln.Addr())
	return nil
}

// Shutdown stops the HTTP server and the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status Status
	if s.status != nil {
		status = s.status()
	}
	if !s.started.IsZero() {
		status.Uptime = time.Since(s.started).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleRoot either forwards to the portal (provisioning mode, where
// every path must serve the form) or answers a minimal index.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.portalMode.Load() {
		if portal := s.portalHandler(); portal != nil {
			portal.ServeHTTP(w, r)
			return
		}
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.handleStatus(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}
