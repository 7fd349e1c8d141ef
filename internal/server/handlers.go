package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskmill/taskmill/internal/server/middleware"
	"github.com/taskmill/taskmill/pkg/job"
	"github.com/taskmill/taskmill/pkg/queue"
)

type submitRequest struct {
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
	Priority   int             `json:"priority"`
	MaxRetries *int            `json:"max_retries"`
}

type submitResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_REQUEST", "invalid JSON body: "+err.Error(), nil)
		return
	}
	if len(req.Input) == 0 {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_REQUEST", "input is required", nil)
		return
	}

	// -1 selects the queue's default retry budget.
	maxRetries := -1
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			middleware.WriteError(w, r, http.StatusBadRequest,
				"INVALID_REQUEST", "max_retries must be >= 0", nil)
			return
		}
		maxRetries = *req.MaxRetries
	}

	id, err := s.queue.SubmitNamed(req.Name, req.Input, req.Priority, maxRetries)
	if err != nil {
		middleware.WriteError(w, r, http.StatusInternalServerError,
			"INTERNAL_ERROR", err.Error(), nil)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, submitResponse{ID: id})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := s.queue.Get(id)
	if err != nil {
		middleware.WriteError(w, r, http.StatusNotFound,
			"NOT_FOUND", "job not found", map[string]any{"id": id})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	statusParam := r.URL.Query().Get("status")

	var jobs []*job.Job
	if statusParam == "" {
		for _, st := range job.Statuses() {
			jobs = append(jobs, s.queue.List(st)...)
		}
	} else {
		st := job.Status(statusParam)
		if !st.Valid() {
			middleware.WriteError(w, r, http.StatusBadRequest,
				"INVALID_REQUEST", "unknown status "+statusParam, nil)
			return
		}
		jobs = s.queue.List(st)
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.queue.Cancel(id)
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(job.StatusCancelled)})
	case errors.Is(err, queue.ErrNotFound):
		middleware.WriteError(w, r, http.StatusNotFound,
			"NOT_FOUND", "job not found", map[string]any{"id": id})
	case errors.Is(err, queue.ErrJobRunning):
		middleware.WriteError(w, r, http.StatusConflict,
			"JOB_RUNNING", "running jobs cannot be cancelled", map[string]any{"id": id})
	default:
		middleware.WriteError(w, r, http.StatusInternalServerError,
			"INTERNAL_ERROR", err.Error(), nil)
	}
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, s.queue.Status())
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = "completed"
	}

	var removed int
	switch bucket {
	case "completed":
		removed = s.queue.ClearCompleted()
	case "failed":
		removed = s.queue.ClearFailed()
	case "all":
		removed = s.queue.ClearAll()
	default:
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_REQUEST", "bucket must be completed, failed, or all", nil)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"bucket":  bucket,
		"removed": removed,
	})
}
