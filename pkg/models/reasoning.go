package models

const (
	TimeSensitivityImmediate = "immediate"
	TimeSensitivityHours     = "hours"
	TimeSensitivityDays      = "days"
	TimeSensitivityWeeks     = "weeks"
)

// Uncertainty flags the pipeline adds on its own, independent of whatever
// the model reports.
const (
	FlagLowVisionConfidence   = "low_vision_confidence"
	FlagHighHallucinationRisk = "high_hallucination_risk"
	FlagLowCitationCoverage   = "low_citation_coverage"
	FlagNoRAGDocs             = "no_rag_docs"
	FlagFallbackPlan          = "fallback_plan"
	FlagRetrievalDegraded     = "retrieval_degraded"
)

// StatisticalMetrics tracks confidence and reasoning quality for one
// pipeline stage output.
type StatisticalMetrics struct {
	Confidence                      float64  `json:"confidence"                        validate:"min=0,max=1"`
	UncertaintyFlags                []string `json:"uncertainty_flags"`
	ReasoningSteps                  int      `json:"reasoning_steps"                   validate:"min=1"`
	AlternativeHypothesesConsidered int      `json:"alternative_hypotheses_considered" validate:"min=0"`
}

// RiskAssessment is the re-derived risk picture from reasoning, independent
// of the danger level the vision model stated.
type RiskAssessment struct {
	Level                  string   `json:"level"                    validate:"required,oneof=low medium high"`
	Reasoning              string   `json:"reasoning"                validate:"required,min=10,max=500"`
	ImmediateDangerPresent bool     `json:"immediate_danger_present"`
	TimeSensitivity        string   `json:"time_sensitivity"         validate:"required,oneof=immediate hours days weeks"`
	EscalationTriggers     []string `json:"escalation_triggers"`
}

// ReasonerOutput is the stage-1 contract between the vision extraction and
// retrieval: a refined issue description, a risk re-assessment, the
// retrieval gate decision, and the optimized search query. Owned by the
// pipeline run that produced it and never mutated afterwards.
type ReasonerOutput struct {
	RefinedIssue     string             `json:"refined_issue"      validate:"required,min=10,max=200"`
	RefinedLocation  string             `json:"refined_location"   validate:"required,min=5,max=100"`
	RefinedFixture   string             `json:"refined_fixture"    validate:"required,min=3,max=100"`
	RiskAssessment   RiskAssessment     `json:"risk_assessment"`
	RequiresRAG      bool               `json:"requires_rag"`
	RAGQuery         string             `json:"rag_query"          validate:"required,min=5,max=300"`
	RAGQueryKeywords []string           `json:"rag_query_keywords" validate:"max=10"`
	Metrics          StatisticalMetrics `json:"statistical_metrics"`
	ReasoningTrace   string             `json:"reasoning_trace"    validate:"required,min=20,max=1000"`
}
