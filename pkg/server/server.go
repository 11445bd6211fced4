// pkg/server/server.go

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bmcdonald3/smd-inventory/pkg/ansible"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = 5 * time.Second
)

// Populator fills a fresh inventory for one request.
type Populator func(ctx context.Context, target *ansible.Inventory) error

// Server exposes the dynamic inventory document over HTTP.
type Server struct {
	populate   Populator
	newTarget  func() *ansible.Inventory
	httpServer *http.Server
	addr       string
	log        *slog.Logger
}

// New creates a server listening on addr. newTarget builds the empty
// inventory each request is rendered from.
func New(addr string, populate Populator, newTarget func() *ansible.Inventory, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{populate: populate, newTarget: newTarget, addr: addr, log: log}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/inventory", s.handleList)
	r.Get("/hosts/{host}", s.handleHost)

	return r
}

// ListenAndServe blocks until ctx is done, then shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("Error encoding response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) build(w http.ResponseWriter, r *http.Request) (*ansible.Inventory, bool) {
	inv := s.newTarget()
	if err := s.populate(r.Context(), inv); err != nil {
		s.log.Error("failed to populate inventory", "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return nil, false
	}
	return inv, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.build(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, inv.List())
}

func (s *Server) handleHost(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.build(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "host")
	vars, err := inv.HostVars(name)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, vars)
}
