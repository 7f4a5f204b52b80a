package models

import "time"

// Pipeline stage names used in error reporting and latency maps.
const (
	StageVision    = "vision"
	StageReasoner1 = "reasoner1"
	StageRAG       = "rag"
	StageReasoner2 = "reasoner2"
)

// RetrievedPassage is one ranked result from vector search. Score is nil
// when the backing index cannot produce a similarity (score-less search).
type RetrievedPassage struct {
	Rank    int      `json:"rank"`
	Score   *float64 `json:"score,omitempty"`
	Text    string   `json:"text"`
	Source  string   `json:"source"`
	ChunkID string   `json:"chunk_id"`
}

// VectorRetrievalMetrics describes one retrieval round for debugging and
// confidence scoring.
type VectorRetrievalMetrics struct {
	QueryEmbeddingNorm *float64 `json:"query_embedding_norm,omitempty"`
	AvgSimilarityScore *float64 `json:"avg_similarity_score,omitempty"`
	MinSimilarityScore *float64 `json:"min_similarity_score,omitempty"`
	MaxSimilarityScore *float64 `json:"max_similarity_score,omitempty"`
	NumDocsRetrieved   int      `json:"num_docs_retrieved"`
	RetrievalLatencyMS *float64 `json:"retrieval_latency_ms,omitempty"`
}

// FixStep is a single step in a fix plan.
type FixStep struct {
	StepNumber           int      `json:"step_number"                      validate:"required,min=1"`
	Title                string   `json:"title"                            validate:"required,min=5,max=100"`
	Instruction          string   `json:"instruction"                      validate:"required,min=10,max=500"`
	SafetyNote           *string  `json:"safety_note,omitempty"            validate:"omitempty,max=300"`
	ExpectedOutcome      string   `json:"expected_outcome"                 validate:"required,min=5,max=200"`
	EstimatedTimeMinutes *int     `json:"estimated_time_minutes,omitempty" validate:"omitempty,min=1,max=120"`
	ToolsForThisStep     []string `json:"tools_for_this_step"`
}

// CitationTracker records which retrieved passages the plan actually used.
// Invariant: cited and uncited together cover exactly 1..N for N retrieved
// passages, and hallucination risk is a pure function of coverage.
type CitationTracker struct {
	CitedDocIndices        []int   `json:"cited_doc_indices"`
	UncitedDocIndices      []int   `json:"uncited_doc_indices"`
	HallucinationRiskScore float64 `json:"hallucination_risk_score" validate:"min=0,max=1"`
	CitationCoverage       float64 `json:"citation_coverage"        validate:"min=0,max=1"`
}

// FixPlan is the final structured output of the reasoning pipeline:
// ordered steps, escalation conditions, aggregated tools/parts, plus the
// citation and confidence bookkeeping that makes the plan auditable.
type FixPlan struct {
	Summary                   string                  `json:"summary"      validate:"required,min=20,max=500"`
	DangerLevel               string                  `json:"danger_level" validate:"required,oneof=low medium high"`
	Steps                     []FixStep               `json:"steps"        validate:"required,min=1,max=15,dive"`
	CallProIf                 []string                `json:"call_pro_if"`
	ToolsNeeded               []string                `json:"tools_needed"`
	PartsNeeded               []string                `json:"parts_needed"`
	EstimatedTotalTimeMinutes *int                    `json:"estimated_total_time_minutes,omitempty" validate:"omitempty,min=1,max=300"`
	CitationTracker           CitationTracker         `json:"citation_tracker"`
	Metrics                   StatisticalMetrics      `json:"statistical_metrics"`
	RAGRetrievalMetrics       *VectorRetrievalMetrics `json:"rag_retrieval_metrics,omitempty"`
	FallbackToVisionOnly      bool                    `json:"fallback_to_vision_only"`
}

// SolutionResult is the full outcome of one solution pipeline run. On
// failure, ErrorStage names the stage that aborted the run; partial
// outputs from earlier stages are still attached.
type SolutionResult struct {
	SessionID      string             `json:"session_id"`
	ReasonerOutput *ReasonerOutput    `json:"reasoner_output,omitempty"`
	FixPlan        *FixPlan           `json:"fix_plan,omitempty"`
	Error          string             `json:"error,omitempty"`
	ErrorStage     string             `json:"error_stage,omitempty"`
	TotalLatencyMS float64            `json:"total_latency_ms"`
	StageLatencies map[string]float64 `json:"stage_latencies"`
	CreatedAt      time.Time          `json:"created_at"`
}
