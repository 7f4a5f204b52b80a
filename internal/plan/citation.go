package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// charsPerCitation is the coverage heuristic: one citation is assumed to
// ground roughly this many characters of serialized plan text.
const charsPerCitation = 100

// newCitationTracker scores how much of the plan the cited passages can
// account for. Indices outside 1..totalDocs are kept in the cited list
// as-is; they still count toward coverage but never appear as uncited.
func newCitationTracker(cited []int, totalDocs, planChars int) models.CitationTracker {
	seen := make(map[int]struct{}, len(cited))
	for _, idx := range cited {
		seen[idx] = struct{}{}
	}
	citedList := make([]int, 0, len(seen))
	for idx := range seen {
		citedList = append(citedList, idx)
	}
	slices.Sort(citedList)

	uncited := make([]int, 0, totalDocs)
	for idx := 1; idx <= totalDocs; idx++ {
		if _, ok := seen[idx]; !ok {
			uncited = append(uncited, idx)
		}
	}

	covered := float64(len(citedList) * charsPerCitation)
	coverage := math.Min(1.0, covered/math.Max(1, float64(planChars)))

	// An uncited plan is maximally suspect no matter how short it is.
	var risk float64
	switch {
	case len(citedList) == 0:
		risk = 1.0
	case coverage >= 0.8:
		risk = 0.0
	case coverage >= 0.5:
		risk = 0.3
	case coverage >= 0.2:
		risk = 0.6
	default:
		risk = 0.9
	}

	return models.CitationTracker{
		CitedDocIndices:        citedList,
		UncitedDocIndices:      uncited,
		HallucinationRiskScore: risk,
		CitationCoverage:       coverage,
	}
}

// buildPlanMetrics blends the model's self-reported confidence with the
// stage-1 confidence and the citation quality. Missing fields fall back
// to neutral defaults rather than failing the plan.
func buildPlanMetrics(raw json.RawMessage, stage1Confidence float64, tracker models.CitationTracker) (models.StatisticalMetrics, error) {
	var fields struct {
		Confidence                      *float64        `json:"confidence"`
		UncertaintyFlags                json.RawMessage `json:"uncertainty_flags"`
		ReasoningSteps                  *float64        `json:"reasoning_steps"`
		AlternativeHypothesesConsidered *float64        `json:"alternative_hypotheses_considered"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.StatisticalMetrics{}, fmt.Errorf("decode statistical_metrics: %v", err)
	}

	modelConfidence := 0.5
	if fields.Confidence != nil {
		modelConfidence = clamp01(*fields.Confidence)
	}

	adjustment := tracker.CitationCoverage * 0.2
	penalty := tracker.HallucinationRiskScore * 0.3
	confidence := clamp01(modelConfidence*0.5 + stage1Confidence*0.3 + adjustment - penalty)

	flags := []string{}
	if len(fields.UncertaintyFlags) > 0 {
		// A non-list here is dropped, not fatal.
		if err := json.Unmarshal(fields.UncertaintyFlags, &flags); err != nil {
			flags = []string{}
		}
	}
	if tracker.HallucinationRiskScore > 0.5 && !slices.Contains(flags, models.FlagHighHallucinationRisk) {
		flags = append(flags, models.FlagHighHallucinationRisk)
	}
	if tracker.CitationCoverage < 0.3 && !slices.Contains(flags, models.FlagLowCitationCoverage) {
		flags = append(flags, models.FlagLowCitationCoverage)
	}

	steps := 1
	if fields.ReasoningSteps != nil {
		steps = int(*fields.ReasoningSteps)
	}
	if steps < 1 {
		steps = 1
	} else if steps > 20 {
		steps = 20
	}

	alternatives := 0
	if fields.AlternativeHypothesesConsidered != nil {
		alternatives = int(*fields.AlternativeHypothesesConsidered)
	}
	if alternatives < 0 {
		alternatives = 0
	} else if alternatives > 10 {
		alternatives = 10
	}

	return models.StatisticalMetrics{
		Confidence:                      confidence,
		UncertaintyFlags:                flags,
		ReasoningSteps:                  steps,
		AlternativeHypothesesConsidered: alternatives,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
