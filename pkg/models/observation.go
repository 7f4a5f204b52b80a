// Package models contains shared data models used across the FixSight codebase.
package models

import "time"

// Fixture categories the vision model is allowed to emit. "other" is the
// catch-all for fixtures the demo flows don't know about.
const (
	CategoryToilet      = "toilet"
	CategorySink        = "sink"
	CategoryShower      = "shower"
	CategoryWaterHeater = "water_heater"
	CategoryElectrical  = "electrical"
	CategoryHVAC        = "hvac"
	CategoryAppliance   = "appliance"
	CategoryStructural  = "structural"
	CategoryOther       = "other"
)

const (
	DangerLow    = "low"
	DangerMedium = "medium"
	DangerHigh   = "high"
)

const (
	SessionStatusIdle      = "idle"
	SessionStatusAnalyzing = "analyzing"
)

// ProspectedIssue is one ranked candidate diagnosis for a frame.
type ProspectedIssue struct {
	Rank           int      `json:"rank"            validate:"required,min=1,max=3"`
	IssueName      string   `json:"issue_name"      validate:"required"`
	SuspectedCause string   `json:"suspected_cause" validate:"required"`
	Confidence     float64  `json:"confidence"      validate:"min=0,max=1"`
	SymptomsMatch  []string `json:"symptoms_match"`
	Category       string   `json:"category"        validate:"required"`
}

// Observation is the structured diagnosis extracted from one image.
// The vision model must return exactly 3 prospected issues ranked by
// likelihood; downstream stages rely on that shape and never re-check it.
type Observation struct {
	Category           string            `json:"category"             validate:"required,oneof=toilet sink shower water_heater electrical hvac appliance structural other"`
	VisualSignals      map[string]bool   `json:"visual_signals"`
	ProspectedIssues   []ProspectedIssue `json:"prospected_issues"    validate:"required,len=3,dive"`
	OverallDangerLevel string            `json:"overall_danger_level" validate:"required,oneof=low medium high"`
	Location           string            `json:"location"             validate:"required"`
	Fixture            string            `json:"fixture"              validate:"required"`
	ObservedSymptoms   []string          `json:"observed_symptoms"`
	RequiresShutoff    bool              `json:"requires_shutoff"`
	WaterPresent       bool              `json:"water_present"`
	ImmediateAction    string            `json:"immediate_action"`
	ProfessionalNeeded bool              `json:"professional_needed"`
	NoIssue            bool              `json:"no_issue"`
}

// TopIssue returns the rank-1 prospected issue, or nil when the slice is
// malformed (only possible before validation).
func (o *Observation) TopIssue() *ProspectedIssue {
	for i := range o.ProspectedIssues {
		if o.ProspectedIssues[i].Rank == 1 {
			return &o.ProspectedIssues[i]
		}
	}
	if len(o.ProspectedIssues) > 0 {
		return &o.ProspectedIssues[0]
	}
	return nil
}

// AnalysisRecord is one entry in a session's analysis history. Failed
// extractions are kept too, with the raw model output truncated for
// diagnosis; the latest-snapshot key only ever holds valid records.
type AnalysisRecord struct {
	Timestamp   time.Time    `json:"timestamp"`
	Valid       bool         `json:"valid"`
	Observation *Observation `json:"observation,omitempty"`
	Error       string       `json:"error,omitempty"`
	RawExcerpt  string       `json:"raw_excerpt,omitempty"`
}
