package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"asynckv/pkg/asyncdb"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

type iAsyncDB interface {
	Put(ctx context.Context, key, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Delete(ctx context.Context, key []byte) error
	Flush(ctx context.Context) error
	CompactRange(ctx context.Context, from, to []byte) error
	GetSnapshot(ctx context.Context) (asyncdb.SnapshotRef, error)
	GetAt(ctx context.Context, ref asyncdb.SnapshotRef, key []byte) ([]byte, bool, error)
	DropSnapshot(ctx context.Context, ref asyncdb.SnapshotRef) error
}

type iMetrics interface {
	Snapshot() map[string]int64
	Names() []string
}

// Server represents the HTTP server in front of the database bridge.
type Server struct {
	db         iAsyncDB
	metrics    iMetrics
	httpServer *http.Server
	URL        string
	addr       string
}

// NewServer creates a new server instance. metrics may be nil.
func NewServer(db iAsyncDB, metrics iMetrics, port string) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	return &Server{
		db:      db,
		metrics: metrics,
		URL:     "http://localhost:" + port,
		addr:    ":" + port,
	}
}

// Start starts the server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

// Stop stops the server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Put("/api/kv", s.handlePut)
	r.Get("/api/kv", s.handleGet)
	r.Delete("/api/kv", s.handleDelete)

	r.Post("/api/flush", s.handleFlush)
	r.Post("/api/compact", s.handleCompact)

	r.Post("/api/snapshot", s.handleSnapshotCreate)
	r.Get("/api/snapshot/{ref}", s.handleSnapshotGet)
	r.Delete("/api/snapshot/{ref}", s.handleSnapshotDrop)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

// writeError maps bridge errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, asyncdb.ErrUnknownSnapshot):
		status = http.StatusNotFound
	case errors.Is(err, asyncdb.ErrShutdown):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		if _, err := w.Write([]byte("# no metrics\n")); err != nil {
			slog.Warn("Failed to write metrics response", "error", err)
		}
		return
	}

	counters := s.metrics.Snapshot()
	for _, name := range s.metrics.Names() {
		if _, err := fmt.Fprintf(w, "%s %d\n", name, counters[name]); err != nil {
			slog.Warn("Failed to write metrics response", "error", err)
			return
		}
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	key := r.FormValue("key")
	value := r.FormValue("value")
	if key == "" || value == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key or value"))
		return
	}

	if err := s.db.Put(r.Context(), []byte(key), []byte(value)); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	value, found, err := s.db.Get(r.Context(), []byte(key))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found"))
		return
	}

	s.writeJSON(w, http.StatusOK, NewValueResponse(string(value)))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	if err := s.db.Delete(r.Context(), []byte(key)); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Flush(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	// Absent bounds mean a full compaction.
	var from, to []byte
	if v := r.URL.Query().Get("from"); v != "" {
		from = []byte(v)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to = []byte(v)
	}

	if err := s.db.CompactRange(r.Context(), from, to); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleSnapshotCreate(w http.ResponseWriter, r *http.Request) {
	ref, err := s.db.GetSnapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSnapshotResponse(uint64(ref)))
}

func (s *Server) snapshotRef(w http.ResponseWriter, r *http.Request) (asyncdb.SnapshotRef, bool) {
	raw := chi.URLParam(r, "ref")
	ref, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid snapshot reference"))
		return 0, false
	}
	return asyncdb.SnapshotRef(ref), true
}

func (s *Server) handleSnapshotGet(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.snapshotRef(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	value, found, err := s.db.GetAt(r.Context(), ref, []byte(key))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found"))
		return
	}

	s.writeJSON(w, http.StatusOK, NewValueResponse(string(value)))
}

func (s *Server) handleSnapshotDrop(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.snapshotRef(w, r)
	if !ok {
		return
	}

	if err := s.db.DropSnapshot(r.Context(), ref); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}
