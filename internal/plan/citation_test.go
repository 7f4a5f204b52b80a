package plan

import (
	"encoding/json"
	"math"
	"slices"
	"testing"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

func TestCitationTracker_CoverageAndRisk(t *testing.T) {
	// 5 distinct citations at 100 chars each against a 1000-char plan.
	tracker := newCitationTracker([]int{1, 2, 3, 4, 5}, 4, 1000)

	if tracker.CitationCoverage != 0.5 {
		t.Errorf("coverage = %v, want 0.5", tracker.CitationCoverage)
	}
	if tracker.HallucinationRiskScore != 0.3 {
		t.Errorf("risk = %v, want 0.3", tracker.HallucinationRiskScore)
	}
	if len(tracker.UncitedDocIndices) != 0 {
		t.Errorf("uncited = %v, want empty", tracker.UncitedDocIndices)
	}
}

func TestCitationTracker_NoCitationsMaxRisk(t *testing.T) {
	for _, planChars := range []int{0, 50, 100000} {
		tracker := newCitationTracker(nil, 3, planChars)
		if tracker.HallucinationRiskScore != 1.0 {
			t.Errorf("planChars=%d: risk = %v, want 1.0", planChars, tracker.HallucinationRiskScore)
		}
		if tracker.CitationCoverage != 0.0 {
			t.Errorf("planChars=%d: coverage = %v, want 0.0", planChars, tracker.CitationCoverage)
		}
		if !slices.Equal(tracker.UncitedDocIndices, []int{1, 2, 3}) {
			t.Errorf("planChars=%d: uncited = %v", planChars, tracker.UncitedDocIndices)
		}
	}
}

func TestCitationTracker_RiskThresholds(t *testing.T) {
	tests := []struct {
		name         string
		cited        []int
		planChars    int
		wantCoverage float64
		wantRisk     float64
	}{
		{"excellent coverage", []int{1, 2, 3, 4, 5, 6, 7, 8}, 1000, 0.8, 0.0},
		{"good coverage", []int{1, 2, 3, 4, 5}, 1000, 0.5, 0.3},
		{"moderate coverage", []int{1, 2}, 1000, 0.2, 0.6},
		{"poor coverage", []int{1}, 1000, 0.1, 0.9},
		{"short plan saturates", []int{1, 2, 3}, 150, 1.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newCitationTracker(tt.cited, 10, tt.planChars)
			if math.Abs(tracker.CitationCoverage-tt.wantCoverage) > 1e-9 {
				t.Errorf("coverage = %v, want %v", tracker.CitationCoverage, tt.wantCoverage)
			}
			if tracker.HallucinationRiskScore != tt.wantRisk {
				t.Errorf("risk = %v, want %v", tracker.HallucinationRiskScore, tt.wantRisk)
			}
		})
	}
}

func TestCitationTracker_DedupesAndSorts(t *testing.T) {
	tracker := newCitationTracker([]int{3, 1, 3, 2, 1}, 5, 1000)

	if !slices.Equal(tracker.CitedDocIndices, []int{1, 2, 3}) {
		t.Errorf("cited = %v, want [1 2 3]", tracker.CitedDocIndices)
	}
	if !slices.Equal(tracker.UncitedDocIndices, []int{4, 5}) {
		t.Errorf("uncited = %v, want [4 5]", tracker.UncitedDocIndices)
	}
	// Duplicates collapse before the coverage estimate.
	if tracker.CitationCoverage != 0.3 {
		t.Errorf("coverage = %v, want 0.3", tracker.CitationCoverage)
	}
}

func TestCitationTracker_EmptyPlanText(t *testing.T) {
	tracker := newCitationTracker([]int{1}, 1, 0)
	if tracker.CitationCoverage != 1.0 {
		t.Errorf("coverage = %v, want 1.0", tracker.CitationCoverage)
	}
}

// --- Plan metrics ---

func metricsJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestBuildPlanMetrics_ConfidenceBlend(t *testing.T) {
	tracker := models.CitationTracker{CitationCoverage: 0.5, HallucinationRiskScore: 0.3}
	raw := metricsJSON(t, map[string]any{
		"confidence":                        0.8,
		"uncertainty_flags":                 []string{},
		"reasoning_steps":                   4,
		"alternative_hypotheses_considered": 1,
	})

	metrics, err := buildPlanMetrics(raw, 0.6, tracker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 0.5*0.8 + 0.3*0.6 + 0.2*0.5 - 0.3*0.3 = 0.59
	if math.Abs(metrics.Confidence-0.59) > 1e-9 {
		t.Errorf("confidence = %v, want 0.59", metrics.Confidence)
	}
	if len(metrics.UncertaintyFlags) != 0 {
		t.Errorf("flags = %v, want none", metrics.UncertaintyFlags)
	}
}

func TestBuildPlanMetrics_AutoFlags(t *testing.T) {
	tracker := models.CitationTracker{CitationCoverage: 0.1, HallucinationRiskScore: 0.9}
	raw := metricsJSON(t, map[string]any{"confidence": 0.8})

	metrics, err := buildPlanMetrics(raw, 0.6, tracker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Contains(metrics.UncertaintyFlags, models.FlagHighHallucinationRisk) {
		t.Errorf("missing high hallucination flag: %v", metrics.UncertaintyFlags)
	}
	if !slices.Contains(metrics.UncertaintyFlags, models.FlagLowCitationCoverage) {
		t.Errorf("missing low coverage flag: %v", metrics.UncertaintyFlags)
	}
}

func TestBuildPlanMetrics_AutoFlagsNotDuplicated(t *testing.T) {
	tracker := models.CitationTracker{CitationCoverage: 0.1, HallucinationRiskScore: 0.9}
	raw := metricsJSON(t, map[string]any{
		"confidence":        0.8,
		"uncertainty_flags": []string{models.FlagHighHallucinationRisk, models.FlagLowCitationCoverage},
	})

	metrics, err := buildPlanMetrics(raw, 0.6, tracker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics.UncertaintyFlags) != 2 {
		t.Errorf("flags = %v, want exactly 2", metrics.UncertaintyFlags)
	}
}

func TestBuildPlanMetrics_Defaults(t *testing.T) {
	tracker := models.CitationTracker{CitationCoverage: 1.0, HallucinationRiskScore: 0.0}

	metrics, err := buildPlanMetrics(metricsJSON(t, map[string]any{}), 0.6, tracker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 0.5*0.5 + 0.3*0.6 + 0.2*1.0 - 0 = 0.63 with the 0.5 default.
	if math.Abs(metrics.Confidence-0.63) > 1e-9 {
		t.Errorf("confidence = %v, want 0.63", metrics.Confidence)
	}
	if metrics.ReasoningSteps != 1 {
		t.Errorf("reasoning steps = %d, want 1", metrics.ReasoningSteps)
	}
	if metrics.AlternativeHypothesesConsidered != 0 {
		t.Errorf("alternatives = %d, want 0", metrics.AlternativeHypothesesConsidered)
	}
}

func TestBuildPlanMetrics_Clamps(t *testing.T) {
	tracker := models.CitationTracker{CitationCoverage: 0.5, HallucinationRiskScore: 0.3}
	raw := metricsJSON(t, map[string]any{
		"confidence":                        7.0,
		"reasoning_steps":                   50,
		"alternative_hypotheses_considered": 99,
	})

	metrics, err := buildPlanMetrics(raw, 1.0, tracker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Model confidence clamps to 1.0 before blending:
	// 0.5 + 0.3 + 0.1 - 0.09 = 0.81
	if math.Abs(metrics.Confidence-0.81) > 1e-9 {
		t.Errorf("confidence = %v, want 0.81", metrics.Confidence)
	}
	if metrics.ReasoningSteps != 20 {
		t.Errorf("reasoning steps = %d, want 20", metrics.ReasoningSteps)
	}
	if metrics.AlternativeHypothesesConsidered != 10 {
		t.Errorf("alternatives = %d, want 10", metrics.AlternativeHypothesesConsidered)
	}
}

func TestBuildPlanMetrics_NonListFlagsDropped(t *testing.T) {
	tracker := models.CitationTracker{CitationCoverage: 1.0, HallucinationRiskScore: 0.0}
	raw := json.RawMessage(`{"confidence": 0.8, "uncertainty_flags": "not a list"}`)

	metrics, err := buildPlanMetrics(raw, 0.6, tracker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics.UncertaintyFlags) != 0 {
		t.Errorf("flags = %v, want none", metrics.UncertaintyFlags)
	}
}
