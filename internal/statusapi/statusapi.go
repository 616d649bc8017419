// Package statusapi exposes read-only job and task state over HTTP for
// operational monitoring. It never mutates the job store and is not on
// the evaluation path.
package statusapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eunmann/snapcost/pkg/jobstore"
	"github.com/eunmann/snapcost/pkg/logging"
)

// Server serves the status endpoints.
type Server struct {
	store jobstore.Store
}

// New creates a status server over the given store.
func New(store jobstore.Store) *Server {
	return &Server{store: store}
}

// Router builds the HTTP routes:
//
//	GET /healthz            liveness probe
//	GET /jobs/{jobID}       job record plus aggregate task counts
//	GET /jobs/{jobID}/tasks full task list
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/jobs/{jobID}", s.handleJob)
	r.Get("/jobs/{jobID}/tasks", s.handleTasks)

	return r
}

type jobResponse struct {
	Job    jobstore.Job    `json:"job"`
	Counts jobstore.Counts `json:"counts"`
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	counts, err := s.store.Counts(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, jobResponse{Job: job, Counts: counts})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	tasks, err := s.store.ListTasks(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, tasks)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logging.WithComponent("statusapi")
		log.Warn().Err(err).Msg("encode response failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, jobstore.ErrJobNotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
