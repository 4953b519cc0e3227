// Package api provides the HTTP server and handlers for the explorer.
package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/fruitsalade/explorer/internal/auth"
	"github.com/fruitsalade/explorer/internal/events"
	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/internal/quota"
	"github.com/fruitsalade/explorer/internal/workspace"
	"github.com/fruitsalade/explorer/pkg/models"
)

// Pool gzip writers to reduce allocations on the tree endpoint.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Server is the HTTP server.
type Server struct {
	manager     *workspace.Manager
	broadcaster *events.Broadcaster
	auth        *auth.Auth
	limiter     *quota.RateLimiter
}

// NewServer creates a new server. broadcaster and authHandler may be nil.
func NewServer(manager *workspace.Manager, broadcaster *events.Broadcaster, authHandler *auth.Auth) *Server {
	return &Server{
		manager:     manager,
		broadcaster: broadcaster,
		auth:        authHandler,
	}
}

// SetRateLimiter limits each client, by token subject or remote address.
// A nil limiter disables limiting.
func (s *Server) SetRateLimiter(l *quota.RateLimiter) {
	s.limiter = l
}

// Handler returns the HTTP handler with logging, auth, rate limiting and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Workspaces
	mux.HandleFunc("GET /api/v1/workspaces", s.handleListWorkspaces)
	mux.HandleFunc("POST /api/v1/workspaces", s.handleCreateWorkspace)
	mux.HandleFunc("DELETE /api/v1/workspaces/{name}", s.handleRemoveWorkspace)
	mux.HandleFunc("POST /api/v1/workspaces/{name}/switch", s.handleSwitch)

	// Tree reads
	mux.HandleFunc("GET /api/v1/tree", s.handleTree)
	mux.HandleFunc("GET /api/v1/children", s.handleChildren)
	mux.HandleFunc("GET /api/v1/sections", s.handleSections)

	// Tree writes
	mux.HandleFunc("POST /api/v1/nodes", s.handleAddNode)
	mux.HandleFunc("DELETE /api/v1/nodes", s.handleDeleteNode)
	mux.HandleFunc("POST /api/v1/move", s.handleMove)
	mux.HandleFunc("POST /api/v1/rename", s.handleRename)
	mux.HandleFunc("POST /api/v1/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/v1/select", s.handleSelect)
	mux.HandleFunc("POST /api/v1/open", s.handleOpen)
	mux.HandleFunc("POST /api/v1/sections/{section}", s.handleAddSection)

	// SSE endpoint
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	// Metrics wraps the mux directly so the matched pattern is visible.
	limit := quota.Middleware(s.limiter, clientKey)
	return logging.Middleware(s.auth.Middleware(limit(metrics.Middleware(mux))))
}

// clientKey names the rate limit bucket of a request.
func clientKey(r *http.Request) string {
	if claims := auth.GetClaims(r.Context()); claims != nil && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		s.sendError(w, http.StatusNotFound, "events not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the headers go out so no event after the client
	// connects is missed.
	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if code == http.StatusOK && acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzipPool.Get().(*gzip.Writer)
		gw.Reset(w)
		json.NewEncoder(gw).Encode(v)
		gw.Close()
		gzipPool.Put(gw)
		return
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
		"code":  code,
	})
}

// sendOpError maps an explorer error kind to an HTTP status.
func (s *Server) sendOpError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed", logging.Err(err))
	}
	s.sendError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidPath),
		errors.Is(err, models.ErrInvalidWorkspaceName),
		errors.Is(err, models.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrWorkspaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrNoActiveWorkspace):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidTarget),
		errors.Is(err, models.ErrCyclicMove):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
