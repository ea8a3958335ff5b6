// Package server exposes the workload API: starting, inspecting and
// cancelling load tests and downloading their reports.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/gatewaylab/gatewaybench/internal/workload"
)

const maxBodyBytes = 1 << 20

type HandlerParams struct {
	Manager *workload.Manager
	APIKey  string
	Logger  *logrus.Entry

	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
}

// Handler is the HTTP handler serving the workload API.
type Handler struct {
	manager *workload.Manager
	apiKey  string
	logger  *logrus.Entry
	http.Handler
}

func NewHandler(params HandlerParams) *Handler {
	h := &Handler{
		manager: params.Manager,
		apiKey:  params.APIKey,
		logger:  params.Logger.WithField("subsystem", "server"),
	}

	router := chi.NewRouter()
	router.Use(h.logRequests)
	router.Use(middleware.Recoverer)
	router.Get("/health", h.health)
	if params.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", params.Metrics)
	}
	router.Route("/workload", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/", h.startWorkload)
		r.Get("/", h.listWorkloads)
		r.Get("/{jobId}", h.getWorkload)
		r.Delete("/{jobId}", h.cancelWorkload)
		r.Get("/{jobId}/report/{kind}", h.getReport)
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
	})
	h.Handler = corsMiddleware.Handler(router)
	return h
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Info("request")
	})
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			provided := r.Header.Get("x-api-key")
			if provided == "" {
				provided = r.URL.Query().Get("api_key")
			}
			if provided != h.apiKey {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) startWorkload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing payload")
		return
	}
	params, err := h.manager.ParseParams(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.manager.Start(r.Context(), params)
	var (
		running    *workload.AlreadyRunningError
		validation *workload.ValidationError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
		return
	case errors.As(err, &running):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "jobId": running.JobID})
		return
	case err != nil:
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID, "status": string(job.Status)})
}

func (h *Handler) listWorkloads(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.manager.List(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) getWorkload(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.workloadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) cancelWorkload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	if err := h.manager.Cancel(r.Context(), id); err != nil {
		h.workloadError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id, "status": "cancelling"})
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	path, err := h.manager.ReportPath(r.Context(), chi.URLParam(r, "jobId"), chi.URLParam(r, "kind"))
	if err != nil {
		h.workloadError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handler) workloadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workload.ErrNotFound):
		writeError(w, http.StatusNotFound, workload.ErrNotFound.Error())
	case errors.Is(err, workload.ErrReportNotFound):
		writeError(w, http.StatusNotFound, workload.ErrReportNotFound.Error())
	case errors.Is(err, workload.ErrUnknownReport):
		writeError(w, http.StatusBadRequest, workload.ErrUnknownReport.Error())
	case errors.Is(err, workload.ErrNotRunning):
		writeError(w, http.StatusConflict, workload.ErrNotRunning.Error())
	default:
		h.internalError(w, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.WithError(err).Error("workload request failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
