package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fixsight/internal/api/response"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// historyLimitCap bounds how much history one request can pull.
const (
	historyLimitCap     = 50
	historyLimitDefault = 10
)

// ObservationReader serves the stored analysis snapshots for a session.
type ObservationReader interface {
	Latest(ctx context.Context, sessionID string) (*models.AnalysisRecord, error)
	History(ctx context.Context, sessionID string, limit int) ([]models.AnalysisRecord, error)
}

// SessionInspector exposes the raw per-session key summary for debugging.
type SessionInspector interface {
	Snapshot(ctx context.Context, sessionID string) (map[string]any, error)
}

// NewLatestObservationHandler returns an http.HandlerFunc for
// GET /api/v1/sessions/{sessionID}/latest.
func NewLatestObservationHandler(svc ObservationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		rec, err := svc.Latest(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNoObservation) {
				response.Error(w, http.StatusNotFound, "NO_OBSERVATION",
					"No analysis recorded for this session yet", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, rec)
	}
}

// NewHistoryHandler returns an http.HandlerFunc for
// GET /api/v1/sessions/{sessionID}/history. Failed analyses are part of
// the listing.
func NewHistoryHandler(svc ObservationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		limit := historyLimitDefault
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = n
		}
		if limit > historyLimitCap {
			limit = historyLimitCap
		}

		records, err := svc.History(r.Context(), sessionID, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.List(w, records, response.ListMeta{Limit: limit, Count: len(records)})
	}
}

// NewDebugSessionHandler returns an http.HandlerFunc for
// GET /api/v1/debug/session/{sessionID}.
func NewDebugSessionHandler(svc SessionInspector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		snap, err := svc.Snapshot(r.Context(), sessionID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, snap)
	}
}
