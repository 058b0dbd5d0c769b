// Package api serves the run service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tastythames/polyrun/internal/config"
	"github.com/tastythames/polyrun/internal/metrics"
	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/runner"
	"github.com/tastythames/polyrun/internal/runstore"
	"github.com/tastythames/polyrun/internal/scheduler"
)

// Checker verifies a connection profile against its host.
type Checker interface {
	CheckProfile(ctx context.Context, p profile.Profile) (runner.ProfileReport, error)
}

// Enqueuer accepts runs for the worker pool.
type Enqueuer interface {
	Enqueue(j scheduler.Job) error
}

type Handler struct {
	cfg     *config.Config
	store   runstore.Store
	queue   Enqueuer
	checker Checker
	metrics *metrics.Renderer
	newID   func() string
}

func NewHandler(cfg *config.Config, store runstore.Store, queue Enqueuer, checker Checker, m *metrics.Renderer) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		checker: checker,
		metrics: m,
		newID:   uuid.NewString,
	}
}

// SetupRoutes configures all routes on r.
func SetupRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/metrics", h.Metrics).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tools", h.ListTools).Methods("GET")
	api.HandleFunc("/profiles/check", h.CheckProfile).Methods("POST")
	api.HandleFunc("/runs", h.SubmitRun).Methods("POST")
	api.HandleFunc("/runs", h.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/archive", h.GetArchive).Methods("GET")
	api.HandleFunc("/runs/{id}/log", h.GetLog).Methods("GET")
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Metrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	h.metrics.Write(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
