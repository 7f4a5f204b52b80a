package guide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// ErrUnsupportedCategory means the latest Observation is for a fixture
// that has no guided walkthrough.
var ErrUnsupportedCategory = errors.New("no guided fix for this fixture category")

// Service binds the state machine to the session store: it starts guides
// from the latest Observation, applies reported outcomes, and keeps the
// stored state current.
type Service struct {
	sessions *session.Coordinator
}

func NewService(sessions *session.Coordinator) *Service {
	return &Service{sessions: sessions}
}

// Start creates a guide for the session's latest Observation, replacing
// any guide already stored. Returns session.ErrNoObservation when the
// session has no analysis yet and ErrUnsupportedCategory when the
// observed fixture has no walkthrough.
func (s *Service) Start(ctx context.Context, sessionID string) (*models.GuidePlan, *models.GuideState, error) {
	rec, err := s.sessions.Latest(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	plan, ok := PlanForCategory(rec.Observation.Category)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedCategory, rec.Observation.Category)
	}

	state := NewState(plan, rec.Observation)
	if err := s.sessions.SaveGuide(ctx, sessionID, plan, state); err != nil {
		return nil, nil, err
	}

	slog.Info("guide started",
		"session_id", sessionID,
		"plan_id", plan.ID,
		"category", plan.Category)
	return plan, state, nil
}

// Advance applies one reported outcome and persists the result. Returns
// session.ErrNoGuide when the session has no guide.
func (s *Service) Advance(ctx context.Context, sessionID, outcome string) (*models.GuidePlan, *models.GuideState, error) {
	plan, state, err := s.sessions.LoadGuide(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if err := NewMachine(plan).Apply(state, outcome); err != nil {
		return nil, nil, err
	}
	if err := s.sessions.SaveGuideState(ctx, sessionID, state); err != nil {
		return nil, nil, err
	}

	slog.Debug("guide advanced",
		"session_id", sessionID,
		"outcome", outcome,
		"current_step", state.CurrentStep,
		"status", state.Status)
	return plan, state, nil
}

// State returns the stored guide plan and state without mutating them.
func (s *Service) State(ctx context.Context, sessionID string) (*models.GuidePlan, *models.GuideState, error) {
	return s.sessions.LoadGuide(ctx, sessionID)
}

// End removes the session's guide entirely.
func (s *Service) End(ctx context.Context, sessionID string) error {
	return s.sessions.ClearGuide(ctx, sessionID)
}

// HandleObservation re-evaluates the danger interrupt after a new frame
// was analyzed. Sessions without a guide are a no-op, not an error.
func (s *Service) HandleObservation(ctx context.Context, sessionID string, obs *models.Observation) error {
	plan, state, err := s.sessions.LoadGuide(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoGuide) {
			return nil
		}
		return err
	}

	if !NewMachine(plan).ApplyObservation(state, obs) {
		return nil
	}

	if state.Interrupt.Active {
		slog.Info("guide interrupted",
			"session_id", sessionID,
			"level", state.Interrupt.Level,
			"requires_shutoff", state.Interrupt.RequiresShutoff)
	}
	return s.sessions.SaveGuideState(ctx, sessionID, state)
}
