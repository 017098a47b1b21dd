package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gifpipe/internal/httpkit"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/repositories"
)

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	if h.jobs == nil {
		return errors.New(errors.CodeNotConfigured, "job history is not configured")
	}

	state := models.State(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state"))))
	switch state {
	case "", models.StatePending, models.StateRunning, models.StateSuccess, models.StateFailure:
	default:
		return errors.ValidationField("state", "state must be PENDING, RUNNING, SUCCESS or FAILURE")
	}

	jobs, err := h.jobs.List(r.Context(), repositories.ListFilter{
		State: state,
		Limit: httpkit.QueryInt(r, "limit", repositories.DefaultListLimit),
	})
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	if h.jobs == nil {
		return errors.New(errors.CodeNotConfigured, "job history is not configured")
	}

	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
	return nil
}
