// Package httpapi exposes query submission and result lookup over JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
	"ProductScout/internal/resilience"
)

// Limits caps query submissions per client IP.
type Limits struct {
	PerIP  int
	Window time.Duration
}

// Server serves the query API.
type Server struct {
	store    ports.QueryStore
	limiter  *resilience.SlidingWindow
	limits   Limits
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer builds the API over store. A nil limiter disables submission caps.
func NewServer(store ports.QueryStore, limiter *resilience.SlidingWindow, limits Limits, log *slog.Logger) *Server {
	return &Server{
		store:    store,
		limiter:  limiter,
		limits:   limits,
		validate: validator.New(),
		logger:   log,
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/queries", func(r chi.Router) {
		r.Post("/", s.createQuery)
		r.Get("/{id}", s.getQuery)
	})
	return r
}

type createQueryRequest struct {
	Query string `json:"query" validate:"required,min=3,max=300"`
}

type createQueryResponse struct {
	ID     string             `json:"id"`
	Status domain.QueryStatus `json:"status"`
}

type queryResponse struct {
	Query   domain.Query          `json:"query"`
	Ranking *domain.RankingRecord `json:"ranking,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createQuery(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.CheckRateLimit(clientIP(r), s.limits.PerIP, s.limits.Window) {
		writeError(w, http.StatusTooManyRequests, "too many queries, try again later")
		return
	}

	var req createQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "query must be between 3 and 300 characters")
		return
	}

	q, err := s.store.CreateQuery(r.Context(), req.Query)
	if err != nil {
		s.logError("create query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot store query")
		return
	}
	if s.logger != nil {
		s.logger.Info("query submitted", "query_id", q.ID)
	}
	writeJSON(w, http.StatusAccepted, createQueryResponse{ID: q.ID, Status: q.Status})
}

func (s *Server) getQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	q, err := s.store.GetQuery(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	if err != nil {
		s.logError("load query failed", "query_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot load query")
		return
	}

	resp := queryResponse{Query: q}
	if q.Status == domain.StatusCompleted {
		rec, err := s.store.GetRankingResult(r.Context(), id)
		switch {
		case err == nil:
			resp.Ranking = &rec
		case errors.Is(err, domain.ErrNotFound):
			// empty runs store no ranking
		default:
			s.logError("load ranking failed", "query_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "cannot load ranking")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
