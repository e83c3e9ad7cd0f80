// Package api provides the local HTTP and WebSocket control surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"turbofire/internal/input"
	"turbofire/internal/protocol"
	"turbofire/internal/turbo"
)

// Engine is the part of *turbo.Engine the API drives.
type Engine interface {
	RequestDesignation()
	EditInterval(in input.LogicalInput, ms int) (turbo.BindingInfo, error)
	RemoveBinding(in input.LogicalInput) error
	Bindings() []turbo.BindingInfo
	Snapshot() turbo.Snapshot
	WithSnapshot(fn func(turbo.Snapshot))
	AddListener(l turbo.Listener)
}

// Server provides HTTP API for local control
type Server struct {
	engine Engine
	token  string
	wsMgr  *WSManager

	mu         sync.Mutex
	httpServer *http.Server
	mounts     []mount
}

type mount struct {
	pattern string
	handler http.Handler
}

// NewServer creates a new API server and subscribes it to engine events.
// An empty token disables authentication.
func NewServer(engine Engine, token string) *Server {
	s := &Server{
		engine: engine,
		token:  token,
	}
	s.wsMgr = newWSManager(s)
	go s.wsMgr.start()
	engine.AddListener(s.wsMgr)
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/bindings", s.handleBindings)
	mux.HandleFunc("POST /api/trigger/designate", s.handleDesignate)
	mux.HandleFunc("PUT /api/bindings/{input}/interval", s.handleInterval)
	mux.HandleFunc("DELETE /api/bindings/{input}", s.handleRemove)
	mux.HandleFunc("GET /ws", s.wsMgr.handleWebSocket)

	s.mu.Lock()
	for _, m := range s.mounts {
		mux.Handle(m.pattern, m.handler)
	}
	s.mu.Unlock()

	return s.requestIDMiddleware(s.originMiddleware(s.authMiddleware(s.recoverMiddleware(mux))))
}

// Handle registers an extra route behind the same middleware. It must be
// called before Start or Handler.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts = append(s.mounts, mount{pattern: pattern, handler: h})
}

// Start starts the API server on 127.0.0.1:port. It blocks until Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		log.Printf("ERROR: API server failed to listen on %s: %v", addr, err)
		log.Printf("Note: turbofire will continue running without the control API.")
		return err
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	log.Printf("API: Listening on %s", addr)

	// This is blocking
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Printf("ERROR: API server stopped: %v", err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()

	s.wsMgr.close()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOV [%s]: %v", w.Header().Get("X-Request-ID"), err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request so log lines can be correlated
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		log.Printf("API: [%s] %s %s from %s", id, r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// originMiddleware rejects state-changing requests sent by pages from other
// origins. Browsers send those without a preflight, so the token alone does
// not help when none is configured.
func (s *Server) originMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !allowedOrigin(r) {
				log.Printf("API: [%s] Rejected %s %s from origin %q", w.Header().Get("X-Request-ID"), r.Method, r.URL.Path, r.Header.Get("Origin"))
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin accepts requests without an Origin header (CLI, scripts) and
// pages served from this server, reached as 127.0.0.1, localhost or [::1] on
// the same port.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" {
		return false
	}
	_, port, err := net.SplitHostPort(r.Host)
	if err != nil || port != u.Port() {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health check
		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Browsers cannot set headers on WebSocket upgrades.
		if r.Header.Get("Authorization") != "Bearer "+s.token && r.URL.Query().Get("token") != s.token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotPayload(s.engine.Snapshot(), ""))
}

// handleBindings handles GET /api/bindings
func (s *Server) handleBindings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPayloads(s.engine.Bindings()))
}

// handleDesignate handles POST /api/trigger/designate
func (s *Server) handleDesignate(w http.ResponseWriter, r *http.Request) {
	s.engine.RequestDesignation()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "awaiting_designation"})
}

type intervalRequest struct {
	IntervalMs *int `json:"interval_ms"`
}

// handleInterval handles PUT /api/bindings/{input}/interval
func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	in, err := input.Parse(r.PathValue("input"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req intervalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntervalMs == nil {
		writeError(w, http.StatusBadRequest, "missing interval_ms")
		return
	}

	info, err := s.engine.EditInterval(in, *req.IntervalMs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(info))
}

// handleRemove handles DELETE /api/bindings/{input}
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	in, err := input.Parse(r.PathValue("input"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.RemoveBinding(in); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toSnapshotPayload(snap turbo.Snapshot, clientID string) protocol.SnapshotPayload {
	payload := protocol.SnapshotPayload{
		ClientID:            clientID,
		AwaitingDesignation: snap.AwaitingDesignation,
		Bindings:            toPayloads(snap.Bindings),
	}
	if !snap.Trigger.IsZero() {
		payload.Trigger = snap.Trigger.String()
	}
	return payload
}

func toPayload(b turbo.BindingInfo) protocol.BindingPayload {
	return protocol.BindingPayload{
		Input:      b.Input.String(),
		IntervalMs: b.IntervalMs,
		Running:    b.Running,
	}
}

func toPayloads(bindings []turbo.BindingInfo) []protocol.BindingPayload {
	out := make([]protocol.BindingPayload, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, toPayload(b))
	}
	return out
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, turbo.ErrNoBinding):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, input.ErrUnknownInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
