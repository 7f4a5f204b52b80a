package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fixsight/internal/api/response"
	"github.com/kiranshivaraju/fixsight/internal/extract"
	"github.com/kiranshivaraju/fixsight/internal/metrics"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/internal/triage"
	"github.com/kiranshivaraju/fixsight/internal/vision"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// maxFrameBytes bounds a single upload. Phone camera frames compress
// well under this.
const maxFrameBytes = 8 << 20

// FrameAnalyzer runs one camera frame through the extraction pipeline.
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, sessionID string, frame []byte) (*models.Observation, error)
}

type skipResult struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}

// NewAnalyzeFrameHandler returns an http.HandlerFunc for
// POST /api/v1/sessions/{sessionID}/frames.
func NewAnalyzeFrameHandler(svc FrameAnalyzer, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		r.Body = http.MaxBytesReader(w, r.Body, maxFrameBytes)
		file, _, err := r.FormFile("image")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				`multipart field "image" is required`, nil)
			return
		}
		defer file.Close()

		frame, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Could not read the image upload", nil)
			return
		}

		obs, err := svc.AnalyzeFrame(r.Context(), sessionID, frame)
		if err != nil {
			writeFrameError(w, m, err)
			return
		}

		m.CountFrame(metrics.FrameAccepted)
		response.JSON(w, obs)
	}
}

// writeFrameError maps an analysis failure to the wire. Skips that
// pre-empt work and genuine failures both land here.
func writeFrameError(w http.ResponseWriter, m *metrics.Metrics, err error) {
	var schemaErr *extract.SchemaValidationError
	switch {
	case errors.Is(err, session.ErrLockBusy):
		m.CountFrame(metrics.FrameBusy)
		response.Error(w, http.StatusConflict, "SESSION_BUSY",
			"Another frame or solution run for this session is in progress", nil)
	case errors.Is(err, session.ErrThrottled):
		m.CountFrame(metrics.FrameThrottled)
		response.Error(w, http.StatusTooManyRequests, "THROTTLED",
			"Frames are arriving faster than the per-session interval", nil)
	case errors.Is(err, session.ErrDuplicateFrame):
		// A repeat of the previous frame is a benign no-op, not an error.
		m.CountFrame(metrics.FrameDuplicate)
		response.JSON(w, skipResult{Skipped: true, Reason: "duplicate"})
	case errors.Is(err, triage.ErrBadImage):
		m.CountFrame(metrics.FrameBadImage)
		response.Error(w, http.StatusBadRequest, "BAD_IMAGE",
			"The upload is not a decodable image", nil)
	case errors.As(err, &schemaErr):
		m.CountFrame(metrics.FrameFailed)
		response.Error(w, http.StatusUnprocessableEntity, "SCHEMA_VALIDATION_FAILED",
			"The vision model returned an invalid observation",
			map[string]string{"raw_excerpt": schemaErr.RawExcerpt})
	case errors.Is(err, vision.ErrExtractionTimeout):
		m.CountFrame(metrics.FrameFailed)
		response.Error(w, http.StatusGatewayTimeout, "VISION_TIMEOUT",
			"Vision extraction took too long and was cancelled", nil)
	case errors.Is(err, vision.ErrProviderUnavailable), errors.Is(err, vision.ErrInvalidResponse):
		m.CountFrame(metrics.FrameFailed)
		response.Error(w, http.StatusBadGateway, "VISION_UNAVAILABLE",
			"The vision provider is not available", nil)
	default:
		m.CountFrame(metrics.FrameFailed)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
