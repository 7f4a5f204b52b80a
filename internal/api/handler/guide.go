package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fixsight/internal/api/response"
	"github.com/kiranshivaraju/fixsight/internal/guide"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// GuideRunner drives the step-by-step fix guide for a session.
type GuideRunner interface {
	Start(ctx context.Context, sessionID string) (*models.GuidePlan, *models.GuideState, error)
	Advance(ctx context.Context, sessionID, outcome string) (*models.GuidePlan, *models.GuideState, error)
	State(ctx context.Context, sessionID string) (*models.GuidePlan, *models.GuideState, error)
	End(ctx context.Context, sessionID string) error
}

type guideResponse struct {
	Plan  *models.GuidePlan  `json:"plan"`
	State *models.GuideState `json:"state"`
}

// NewStartGuideHandler returns an http.HandlerFunc for
// POST /api/v1/sessions/{sessionID}/guide.
func NewStartGuideHandler(svc GuideRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		plan, state, err := svc.Start(r.Context(), sessionID)
		if err != nil {
			writeGuideError(w, err)
			return
		}

		response.Created(w, guideResponse{Plan: plan, State: state})
	}
}

// NewAdvanceGuideHandler returns an http.HandlerFunc for
// POST /api/v1/sessions/{sessionID}/guide/advance.
func NewAdvanceGuideHandler(svc GuideRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		var req struct {
			Outcome string `json:"outcome"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		outcome := strings.TrimSpace(req.Outcome)
		if outcome == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "outcome is required", nil)
			return
		}

		plan, state, err := svc.Advance(r.Context(), sessionID, outcome)
		if err != nil {
			writeGuideError(w, err)
			return
		}

		response.JSON(w, guideResponse{Plan: plan, State: state})
	}
}

// NewGuideStateHandler returns an http.HandlerFunc for
// GET /api/v1/sessions/{sessionID}/guide.
func NewGuideStateHandler(svc GuideRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		plan, state, err := svc.State(r.Context(), sessionID)
		if err != nil {
			writeGuideError(w, err)
			return
		}

		response.JSON(w, guideResponse{Plan: plan, State: state})
	}
}

// NewEndGuideHandler returns an http.HandlerFunc for
// DELETE /api/v1/sessions/{sessionID}/guide.
func NewEndGuideHandler(svc GuideRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		if err := svc.End(r.Context(), sessionID); err != nil {
			writeGuideError(w, err)
			return
		}

		response.NoContent(w)
	}
}

func writeGuideError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoGuide):
		response.Error(w, http.StatusNotFound, "NO_GUIDE",
			"No guide is active for this session", nil)
	case errors.Is(err, session.ErrNoObservation):
		response.Error(w, http.StatusNotFound, "NO_OBSERVATION",
			"No analysis recorded for this session yet", nil)
	case errors.Is(err, guide.ErrUnsupportedCategory):
		response.Error(w, http.StatusConflict, "UNSUPPORTED_FIXTURE",
			"No guided fix exists for the detected fixture category", nil)
	case errors.Is(err, guide.ErrGuideDone):
		response.Error(w, http.StatusConflict, "GUIDE_DONE",
			"The guide is finished; reset it to start over", nil)
	case errors.Is(err, guide.ErrUnknownOutcome):
		response.Error(w, http.StatusBadRequest, "INVALID_OUTCOME",
			"outcome must be one of done, still, flushed_again, danger, reset", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
