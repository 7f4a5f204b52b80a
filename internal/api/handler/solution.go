package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fixsight/internal/api/response"
	"github.com/kiranshivaraju/fixsight/internal/groq"
	"github.com/kiranshivaraju/fixsight/internal/metrics"
	"github.com/kiranshivaraju/fixsight/internal/plan"
	"github.com/kiranshivaraju/fixsight/internal/reason"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// SolutionRunner executes the reasoning pipeline for a session.
type SolutionRunner interface {
	Solve(ctx context.Context, sessionID string) (*models.SolutionResult, error)
}

// SolutionReader serves the stored result of the last pipeline run.
type SolutionReader interface {
	LatestSolution(ctx context.Context, sessionID string) (*models.SolutionResult, error)
}

// NewRunSolutionHandler returns an http.HandlerFunc for
// POST /api/v1/sessions/{sessionID}/solution.
func NewRunSolutionHandler(svc SolutionRunner, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		result, err := svc.Solve(r.Context(), sessionID)
		if result != nil {
			m.ObserveStages(result.StageLatencies)
		}
		if err != nil {
			m.CountSolution(metrics.SolutionFailed)
			writeSolutionError(w, result, err)
			return
		}

		if result.FixPlan != nil && result.FixPlan.FallbackToVisionOnly {
			m.CountSolution(metrics.SolutionFallback)
		} else {
			m.CountSolution(metrics.SolutionCompleted)
		}
		response.JSON(w, result)
	}
}

// NewLatestSolutionHandler returns an http.HandlerFunc for
// GET /api/v1/sessions/{sessionID}/solution/latest.
func NewLatestSolutionHandler(svc SolutionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		result, err := svc.LatestSolution(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNoSolution) {
				response.Error(w, http.StatusNotFound, "NO_SOLUTION",
					"No solution has been generated for this session yet", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, result)
	}
}

// writeSolutionError maps a pipeline failure to the wire. When a stage
// aborted the run, the failing stage name travels in the details.
func writeSolutionError(w http.ResponseWriter, result *models.SolutionResult, err error) {
	var details any
	if result != nil && result.ErrorStage != "" {
		details = map[string]string{"stage": result.ErrorStage}
	}

	switch {
	case errors.Is(err, session.ErrLockBusy):
		response.Error(w, http.StatusConflict, "SESSION_BUSY",
			"Another frame or solution run for this session is in progress", nil)
	case errors.Is(err, session.ErrNoObservation):
		response.Error(w, http.StatusNotFound, "NO_OBSERVATION",
			"No analysis recorded for this session yet", nil)
	case errors.Is(err, groq.ErrGroqTimeout):
		response.Error(w, http.StatusGatewayTimeout, "REASONING_TIMEOUT",
			"The reasoning model took too long and was cancelled", details)
	case errors.Is(err, groq.ErrGroqUnreachable), errors.Is(err, groq.ErrGroqAPIError):
		response.Error(w, http.StatusBadGateway, "REASONING_UNAVAILABLE",
			"The reasoning model is not available", details)
	case errors.Is(err, reason.ErrInvalidOutput), errors.Is(err, plan.ErrInvalidPlan),
		errors.Is(err, groq.ErrEmptyCompletion), errors.Is(err, groq.ErrInvalidJSON):
		response.Error(w, http.StatusBadGateway, "REASONING_INVALID_OUTPUT",
			"The reasoning model returned an unusable answer", details)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", details)
	}
}
