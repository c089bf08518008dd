package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/ratelimit"
	"research-task-scheduler/internal/service"
	"research-task-scheduler/internal/telemetry"
)

// Server wires HTTP handlers over the research service.
type Server struct {
	svc     *service.Service
	limiter *ratelimit.TokenBucket
	logger  *zap.Logger
}

// New constructs the API server. limiter may be nil to disable rate limiting.
func New(svc *service.Service, limiter *ratelimit.TokenBucket, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:     svc,
		limiter: limiter,
		logger:  logger.Named("api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(contentTypeJSON)
		submit := r.With()
		if s.limiter != nil {
			submit = r.With(ratelimit.Middleware(s.limiter, s.logger))
		}
		submit.Post("/research", s.handleSubmit)
		r.Get("/research/{id}", s.handleStatus)
		r.Post("/research/{id}/cancel", s.handleCancel)
		r.Get("/research/{id}/result", s.handleResult)
		r.Get("/research/{id}/logs", s.handleLogs)
		r.Get("/queue/stats", s.handleStats)
		r.Get("/providers", s.handleProviders)
	})
	return r
}

type submitRequest struct {
	Topic    string `json:"topic"`
	Priority string `json:"priority"`
}

type submitResponse struct {
	Job models.Job `json:"job"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	job, err := s.svc.SubmitJob(r.Context(), req.Topic, req.Priority)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Job: job})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.GetJobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled := s.svc.CancelJob(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "cancelled": cancelled})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	logs, err := s.svc.GetLogs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetQueueStats(r.Context()))
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.svc.ProviderHealth(r.Context())})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
