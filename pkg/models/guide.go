package models

import "time"

const (
	GuideStatusActive = "active"
	GuideStatusPaused = "paused"
	GuideStatusDone   = "done"
)

// Step outcomes a client may report while walking through a guide.
const (
	OutcomeDone         = "done"
	OutcomeStill        = "still"
	OutcomeFlushedAgain = "flushed_again"
	OutcomeReset        = "reset"
	OutcomeDanger       = "danger"
)

// GuideStep is one instruction in a fixed walkthrough plan.
type GuideStep struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
	Expectation string `json:"expectation"`
}

// GuidePlan is a fixed, ordered walkthrough for one fixture category.
// Plans are compiled in; they are not model output.
type GuidePlan struct {
	ID       string      `json:"id"`
	Category string      `json:"category"`
	Title    string      `json:"title"`
	Steps    []GuideStep `json:"steps"`
}

// Length returns the number of steps in the plan.
func (p GuidePlan) Length() int { return len(p.Steps) }

// GuideFocus snapshots what the guide was started for, so later frames can
// be compared against the original problem.
type GuideFocus struct {
	Fixture  string `json:"fixture"`
	Location string `json:"location"`
	Issue    string `json:"issue"`
	Category string `json:"category"`
}

// GuideInterrupt is a danger interrupt overlaid on a running guide. It is
// orthogonal to step position: clearing it resumes the guide where it was.
type GuideInterrupt struct {
	Active          bool      `json:"active"`
	Level           string    `json:"level,omitempty"`
	Message         string    `json:"message,omitempty"`
	RequiresShutoff bool      `json:"requires_shutoff,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// GuideState is the persisted state of one session's walkthrough.
// CurrentStep always stays within [1, plan length].
type GuideState struct {
	PlanID         string         `json:"plan_id"`
	Category       string         `json:"category"`
	CurrentStep    int            `json:"current_step"`
	CompletedSteps []int          `json:"completed_steps"`
	FailedAttempts map[int]int    `json:"failed_attempts"`
	Status         string         `json:"status"`
	Active         bool           `json:"active"`
	Focus          GuideFocus     `json:"focus"`
	Interrupt      GuideInterrupt `json:"interrupt"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
