// Package triage admits camera frames into the analysis pipeline: the
// per-session admission protocol, an image sanity check, the vision
// extraction, and the persisted analysis record.
package triage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/fixsight/internal/extract"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// ErrBadImage marks a frame that does not decode as a supported image.
// Rejected before any model call is spent on it.
var ErrBadImage = errors.New("undecodable image")

// Extractor turns a frame into a validated Observation.
type Extractor interface {
	Extract(ctx context.Context, frame []byte, mime string) (*models.Observation, error)
}

// GuideNotifier re-evaluates an active guide after a new Observation.
type GuideNotifier interface {
	HandleObservation(ctx context.Context, sessionID string, obs *models.Observation) error
}

// Service runs the frame intake path end to end.
type Service struct {
	sessions  *session.Coordinator
	extractor Extractor
	guides    GuideNotifier
}

func New(sessions *session.Coordinator, extractor Extractor, guides GuideNotifier) *Service {
	return &Service{
		sessions:  sessions,
		extractor: extractor,
		guides:    guides,
	}
}

// AnalyzeFrame admits one frame for the session and returns its
// Observation.
//
// Admission rejections (session.ErrLockBusy, ErrThrottled,
// ErrDuplicateFrame) and ErrBadImage pre-empt the vision call. Every
// extraction attempt after admission lands in the session history,
// failed ones included, so a stream of bad frames stays diagnosable;
// only valid Observations become the session's latest snapshot.
func (s *Service) AnalyzeFrame(ctx context.Context, sessionID string, frame []byte) (*models.Observation, error) {
	release, err := s.sessions.Admit(ctx, sessionID, frame)
	if err != nil {
		return nil, err
	}
	defer release()

	mime, err := sniffImage(frame)
	if err != nil {
		return nil, err
	}

	obs, err := s.extractor.Extract(ctx, frame, mime)
	if err != nil {
		s.recordFailure(ctx, sessionID, err)
		return nil, err
	}

	rec := models.AnalysisRecord{
		Timestamp:   time.Now().UTC(),
		Valid:       true,
		Observation: obs,
	}
	if err := s.sessions.RecordAnalysis(ctx, sessionID, rec); err != nil {
		return nil, fmt.Errorf("record analysis: %w", err)
	}

	if s.guides != nil {
		if err := s.guides.HandleObservation(ctx, sessionID, obs); err != nil {
			slog.Warn("guide re-evaluation failed",
				"session_id", sessionID,
				"error", err)
		}
	}

	slog.Info("frame analyzed",
		"session_id", sessionID,
		"category", obs.Category,
		"danger", obs.OverallDangerLevel,
		"requires_shutoff", obs.RequiresShutoff)
	return obs, nil
}

// recordFailure appends the failed attempt to history. Schema failures
// keep their raw excerpt so the bad model output can be inspected.
func (s *Service) recordFailure(ctx context.Context, sessionID string, cause error) {
	rec := models.AnalysisRecord{
		Timestamp: time.Now().UTC(),
		Valid:     false,
		Error:     cause.Error(),
	}
	var schemaErr *extract.SchemaValidationError
	if errors.As(cause, &schemaErr) {
		rec.RawExcerpt = schemaErr.RawExcerpt
	}
	if err := s.sessions.RecordAnalysis(ctx, sessionID, rec); err != nil {
		slog.Warn("recording failed analysis",
			"session_id", sessionID,
			"error", err)
	}
}

// sniffImage verifies the frame decodes as an image and returns its
// MIME type for the vision request.
func sniffImage(frame []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return "image/" + format, nil
}
