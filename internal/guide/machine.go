// Package guide drives the fixed step-by-step walkthrough for the demo
// fixture: a small state machine over outcomes the user reports, with a
// danger interrupt that can pause it when a new frame shows escalation.
package guide

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// stillAttemptsBeforeAdvance is how many "still broken" reports on one
// step the machine tolerates before moving the user along anyway.
const stillAttemptsBeforeAdvance = 2

var (
	// ErrGuideDone means the walkthrough already finished; only a reset
	// can restart it.
	ErrGuideDone = errors.New("guide already completed")
	// ErrUnknownOutcome marks an outcome value outside the closed set.
	ErrUnknownOutcome = errors.New("unknown step outcome")
)

// Machine applies outcome transitions for one plan. It only mutates the
// GuideState it is given; persistence is the caller's problem.
type Machine struct {
	plan *models.GuidePlan
}

func NewMachine(plan *models.GuidePlan) *Machine {
	return &Machine{plan: plan}
}

// NewState builds the initial state for a plan, snapshotting what the
// Observation showed so later frames can be compared against it.
func NewState(plan *models.GuidePlan, obs *models.Observation) *models.GuideState {
	focus := models.GuideFocus{Category: plan.Category}
	if obs != nil {
		focus.Fixture = obs.Fixture
		focus.Location = obs.Location
		focus.Category = obs.Category
		if top := obs.TopIssue(); top != nil {
			focus.Issue = top.IssueName
		}
	}

	now := time.Now().UTC()
	return &models.GuideState{
		PlanID:         plan.ID,
		Category:       plan.Category,
		CurrentStep:    1,
		CompletedSteps: []int{},
		FailedAttempts: map[int]int{},
		Status:         models.GuideStatusActive,
		Active:         true,
		Focus:          focus,
		StartedAt:      now,
		UpdatedAt:      now,
	}
}

// Apply advances the state machine by one reported outcome.
//
// done completes the current step and moves forward, finishing the guide
// on the last step. still counts a failed attempt and moves forward once
// the step has been tried enough, as long as a later step exists.
// flushed_again sends the user back to step 1. danger pauses in place.
// reset rebuilds the state from scratch and is the only outcome accepted
// after the guide finished.
func (m *Machine) Apply(state *models.GuideState, outcome string) error {
	if state.Status == models.GuideStatusDone && outcome != models.OutcomeReset {
		return ErrGuideDone
	}
	if state.FailedAttempts == nil {
		state.FailedAttempts = map[int]int{}
	}

	last := m.plan.Length()

	switch outcome {
	case models.OutcomeDanger:
		state.Status = models.GuideStatusPaused

	case models.OutcomeReset:
		state.CurrentStep = 1
		state.CompletedSteps = []int{}
		state.FailedAttempts = map[int]int{}
		state.Status = models.GuideStatusActive
		state.Active = true
		state.Interrupt = models.GuideInterrupt{}

	case models.OutcomeDone:
		m.clearInterrupt(state)
		state.CompletedSteps = appendUnique(state.CompletedSteps, state.CurrentStep)
		if state.CurrentStep < last {
			state.CurrentStep++
		} else {
			state.Status = models.GuideStatusDone
			state.Active = false
		}

	case models.OutcomeStill:
		m.clearInterrupt(state)
		state.FailedAttempts[state.CurrentStep]++
		if state.FailedAttempts[state.CurrentStep] >= stillAttemptsBeforeAdvance && state.CurrentStep < last {
			state.CurrentStep++
		}

	case models.OutcomeFlushedAgain:
		m.clearInterrupt(state)
		state.CurrentStep = 1
		state.Status = models.GuideStatusActive

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}

	state.CurrentStep = clampStep(state.CurrentStep, last)
	state.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyObservation recomputes the danger interrupt from a newly stored
// Observation and reports whether the state changed. High danger or a
// required shutoff installs an interrupt and pauses the guide; a calm
// frame lifts an interrupt it installed earlier.
func (m *Machine) ApplyObservation(state *models.GuideState, obs *models.Observation) bool {
	if state == nil || obs == nil || state.Status == models.GuideStatusDone {
		return false
	}

	if obs.OverallDangerLevel == models.DangerHigh || obs.RequiresShutoff {
		message := obs.ImmediateAction
		if message == "" {
			message = "Stop and make the area safe before continuing."
		}
		state.Interrupt = models.GuideInterrupt{
			Active:          true,
			Level:           obs.OverallDangerLevel,
			Message:         message,
			RequiresShutoff: obs.RequiresShutoff,
			CreatedAt:       time.Now().UTC(),
		}
		state.Status = models.GuideStatusPaused
		state.UpdatedAt = time.Now().UTC()
		return true
	}

	if state.Interrupt.Active {
		m.clearInterrupt(state)
		state.UpdatedAt = time.Now().UTC()
		return true
	}
	return false
}

// clearInterrupt lifts an active interrupt and resumes the guide if the
// interrupt was the only reason it paused. A pause from an explicit
// danger outcome stays until reset or flushed_again.
func (m *Machine) clearInterrupt(state *models.GuideState) {
	if !state.Interrupt.Active {
		return
	}
	state.Interrupt = models.GuideInterrupt{}
	if state.Status == models.GuideStatusPaused {
		state.Status = models.GuideStatusActive
	}
}

func clampStep(step, planLength int) int {
	if step < 1 {
		return 1
	}
	if step > planLength {
		return planLength
	}
	return step
}

func appendUnique(xs []int, x int) []int {
	if slices.Contains(xs, x) {
		return xs
	}
	return append(xs, x)
}
