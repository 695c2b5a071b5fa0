package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/storage"
)

func accumulator(w http.ResponseWriter, r *http.Request, deps Deps) (*assessment.Accumulator, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "assessment id is required")
		return nil, false
	}
	acc, err := deps.Assessments.Get(id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "loading assessment: %v", err)
		return nil, false
	}
	return acc, true
}

func handleGetAssessment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, ok := accumulator(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, acc.Snapshot())
	}
}

func handleSetLocation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var loc assessment.Location
		if !decodeBody(w, r, &loc) {
			return
		}
		loc.Address = strings.TrimSpace(loc.Address)
		if loc.Address == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "address is required")
			return
		}

		acc, ok := accumulator(w, r, deps)
		if !ok {
			return
		}
		if err := acc.SetLocation(r.Context(), loc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving location: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, acc.Snapshot())
	}
}

func handleSetProperty(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var details assessment.PropertyDetails
		if !decodeBody(w, r, &details) {
			return
		}
		if err := details.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		acc, ok := accumulator(w, r, deps)
		if !ok {
			return
		}
		if err := acc.SetProperty(r.Context(), details); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving property: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, acc.Snapshot())
	}
}

func handleSetFeasibility(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report assessment.FeasibilityReport
		if !decodeBody(w, r, &report) {
			return
		}
		if err := report.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		acc, ok := accumulator(w, r, deps)
		if !ok {
			return
		}
		if err := acc.SetFeasibility(r.Context(), report); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving feasibility: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, acc.Snapshot())
	}
}

func handleListAssessments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Assessments.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleDeleteAssessment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Assessments.Delete(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "assessment %q not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting assessment: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAdvance(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, ok := accumulator(w, r, deps)
		if !ok {
			return
		}
		if _, err := acc.Advance(r.Context()); err != nil {
			if errors.Is(err, assessment.ErrStepIncomplete) {
				httpError(w, http.StatusConflict, "step_incomplete", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "advancing assessment: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, acc.Snapshot())
	}
}

func handleRetreat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, ok := accumulator(w, r, deps)
		if !ok {
			return
		}
		acc.Retreat(r.Context())
		writeJSON(w, http.StatusOK, acc.Snapshot())
	}
}

func handleCanProceed(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("step"))
		step := assessment.Step(n)
		if err != nil || !step.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "step must be an integer between 1 and 5")
			return
		}

		acc, ok := accumulator(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"step":       step,
			"stepName":   step.String(),
			"canProceed": acc.CanProceed(step),
		})
	}
}
