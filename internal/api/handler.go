package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Server is the operational HTTP API of the bridge
type Server struct {
	queueUC *usecase.QueueUsecase
	logger  zerolog.Logger

	server *http.Server
	addr   string
}

// NewServer creates a new API server listening on addr
func NewServer(queueUC *usecase.QueueUsecase, addr string, logger zerolog.Logger) *Server {
	s := &Server{
		queueUC: queueUC,
		logger:  logger,
		addr:    addr,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(Logger(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/queue/summary", s.handleSummary)
		r.Get("/queue/items", s.handleListItems)
		r.Post("/queue/items/{id}/release", s.handleRelease)
		r.Get("/threads/{rootID}", s.handleThread)
	})

	return r
}

// Start serves until Stop; it returns nil after a clean shutdown
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ============ Handlers ============

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.queueUC.Summary(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	state := domain.ItemState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.StatePending
	}
	if !state.Valid() {
		s.writeError(w, http.StatusBadRequest, errors.New("state must be pending, processing or processed"))
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	items, err := s.queueUC.List(r.Context(), state, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []*domain.WorkItem{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state": state,
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.queueUC.Thread(r.Context(), chi.URLParam(r, "rootID"))
	if errors.Is(err, repo.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	released, err := s.queueUC.Release(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !released {
		s.writeError(w, http.StatusConflict, errors.New("item is not processing"))
		return
	}
	s.logger.Info().Str("id", id).Msg("item released by operator")
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "released": true})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
