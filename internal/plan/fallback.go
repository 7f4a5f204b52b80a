package plan

import (
	"fmt"
	"math"
	"slices"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// buildFallbackPlan produces a plan from the risk assessment alone, used
// when retrieval was skipped or came back empty. Citations are empty and
// hallucination risk is pinned at 1.0: nothing here is grounded in a
// manual.
func buildFallbackPlan(reasoned *models.ReasonerOutput) *models.FixPlan {
	risk := reasoned.RiskAssessment

	var (
		steps     []models.FixStep
		summary   string
		callProIf []string
	)

	if risk.Level == models.DangerHigh {
		safetyNote := "This is a high-risk situation. Follow safety procedures immediately."
		steps = []models.FixStep{
			{
				StepNumber:       1,
				Title:            "Immediate action required",
				Instruction:      risk.Reasoning,
				SafetyNote:       &safetyNote,
				ExpectedOutcome:  "Immediate danger mitigated",
				ToolsForThisStep: []string{},
			},
			{
				StepNumber:       2,
				Title:            "Call a professional",
				Instruction:      "This issue requires professional expertise. Do not attempt DIY repair.",
				ExpectedOutcome:  "Professional scheduled or on-site",
				ToolsForThisStep: []string{"Phone"},
			},
		}
		summary = fmt.Sprintf("High-risk issue detected: %s. Immediate professional help required.", reasoned.RefinedIssue)
		callProIf = []string{"Immediately - this is a high-risk situation"}
	} else {
		steps = []models.FixStep{
			{
				StepNumber:       1,
				Title:            "Assess the situation",
				Instruction:      fmt.Sprintf("Issue: %s. Location: %s. Check if the issue persists or worsens.", reasoned.RefinedIssue, reasoned.RefinedLocation),
				ExpectedOutcome:  "Clear understanding of issue status",
				ToolsForThisStep: []string{},
			},
		}
		if risk.ImmediateDangerPresent {
			safetyNote := "Follow safety procedures before attempting any fix."
			steps = append(steps, models.FixStep{
				StepNumber:       2,
				Title:            "Take immediate safety action",
				Instruction:      risk.Reasoning,
				SafetyNote:       &safetyNote,
				ExpectedOutcome:  "Safety measures in place",
				ToolsForThisStep: []string{},
			})
		}
		summary = fmt.Sprintf("Issue: %s. Basic assessment provided. Detailed repair manual not available.", reasoned.RefinedIssue)
		callProIf = risk.EscalationTriggers
		if len(callProIf) == 0 {
			callProIf = []string{"If issue worsens", "If you're uncertain about safety"}
		}
	}

	flags := append(slices.Clone(reasoned.Metrics.UncertaintyFlags), models.FlagNoRAGDocs, models.FlagFallbackPlan)

	return &models.FixPlan{
		Summary:     summary,
		DangerLevel: risk.Level,
		Steps:       steps,
		CallProIf:   callProIf,
		ToolsNeeded: []string{},
		PartsNeeded: []string{},
		CitationTracker: models.CitationTracker{
			CitedDocIndices:        []int{},
			UncitedDocIndices:      []int{},
			HallucinationRiskScore: 1.0,
			CitationCoverage:       0.0,
		},
		Metrics: models.StatisticalMetrics{
			Confidence:       math.Min(0.5, reasoned.Metrics.Confidence),
			UncertaintyFlags: flags,
			ReasoningSteps:   1,
		},
		FallbackToVisionOnly: true,
	}
}
