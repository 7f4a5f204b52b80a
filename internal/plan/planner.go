// Package plan implements the second reasoning stage: turning a refined
// diagnosis and retrieved manual passages into a structured fix plan,
// with citation tracking to surface ungrounded content.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/kiranshivaraju/fixsight/internal/groq"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// stage2MaxTokens bounds the planning completion.
const stage2MaxTokens = 4096

// ErrInvalidPlan marks stage-2 model output that failed structural
// validation. Hard failure for the pipeline run; never retried.
var ErrInvalidPlan = errors.New("planner returned invalid plan")

// Planner runs the stage-2 planning call.
type Planner struct {
	client   groq.Client
	validate *validator.Validate
}

func New(client groq.Client) *Planner {
	return &Planner{
		client:   client,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// planResponse is the raw wire shape of the stage-2 completion. The
// model's own tools_needed is deliberately absent: the aggregate is
// rebuilt from per-step tools. Citation indices and metrics are folded
// into the FixPlan after the citation math runs.
type planResponse struct {
	Summary         string           `json:"summary"`
	DangerLevel     string           `json:"danger_level"`
	Steps           []models.FixStep `json:"steps"`
	CallProIf       []string         `json:"call_pro_if"`
	PartsNeeded     []string         `json:"parts_needed"`
	CitedDocIndices []int            `json:"cited_doc_indices"`
	Metrics         json.RawMessage  `json:"statistical_metrics"`
}

// Generate builds a fix plan for the refined diagnosis. When retrieval
// was declared unnecessary or returned nothing, the plan degrades to a
// risk-assessment-only fallback instead of failing.
func (p *Planner) Generate(ctx context.Context, reasoned *models.ReasonerOutput, passages []models.RetrievedPassage, retrieval *models.VectorRetrievalMetrics) (*models.FixPlan, error) {
	if reasoned == nil {
		return nil, fmt.Errorf("generate plan: nil reasoner output")
	}

	if !reasoned.RequiresRAG || len(passages) == 0 {
		slog.Debug("building fallback plan",
			"requires_rag", reasoned.RequiresRAG,
			"passages", len(passages))
		return buildFallbackPlan(reasoned), nil
	}

	completion, err := p.client.Complete(ctx, groq.CompletionRequest{
		UserPrompt: buildStage2Prompt(reasoned, passages),
		JSONMode:   true,
		MaxTokens:  stage2MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("stage-2 completion: %w", err)
	}

	raw := []byte(completion.Content)
	if err := validateStage2(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	var resp planResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	normalizeLists(&resp)

	// Coverage is measured against the serialized steps, so it tracks how
	// much plan content each citation has to account for.
	stepsJSON, err := json.Marshal(resp.Steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	tracker := newCitationTracker(resp.CitedDocIndices, len(passages), len(stepsJSON))

	metrics, err := buildPlanMetrics(resp.Metrics, reasoned.Metrics.Confidence, tracker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	fixPlan := &models.FixPlan{
		Summary:             resp.Summary,
		DangerLevel:         resp.DangerLevel,
		Steps:               resp.Steps,
		CallProIf:           resp.CallProIf,
		ToolsNeeded:         aggregateTools(resp.Steps),
		PartsNeeded:         resp.PartsNeeded,
		CitationTracker:     tracker,
		Metrics:             metrics,
		RAGRetrievalMetrics: retrieval,
	}
	if total := totalMinutes(resp.Steps); total > 0 {
		fixPlan.EstimatedTotalTimeMinutes = &total
	}

	if err := p.validate.Struct(fixPlan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	slog.Debug("fix plan generated",
		"steps", len(fixPlan.Steps),
		"citation_coverage", tracker.CitationCoverage,
		"hallucination_risk", tracker.HallucinationRiskScore,
		"confidence", metrics.Confidence)

	return fixPlan, nil
}

// validateStage2 checks the structural contract before the typed decode,
// so a drifting model yields a named violation instead of zero values.
func validateStage2(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("not a JSON object: %v", err)
	}

	for _, field := range []string{"summary", "danger_level", "steps", "call_pro_if", "cited_doc_indices", "statistical_metrics"} {
		if _, ok := fields[field]; !ok {
			return fmt.Errorf("missing required field %q", field)
		}
	}

	if level := decodeString(fields["danger_level"]); level != models.DangerLow && level != models.DangerMedium && level != models.DangerHigh {
		return fmt.Errorf("invalid danger_level %q (must be low/medium/high)", level)
	}

	var steps []json.RawMessage
	if err := json.Unmarshal(fields["steps"], &steps); err != nil || len(steps) == 0 {
		return errors.New("steps must be a non-empty list")
	}
	for i, rawStep := range steps {
		var step map[string]json.RawMessage
		if err := json.Unmarshal(rawStep, &step); err != nil {
			return fmt.Errorf("steps[%d] must be an object", i)
		}
		for _, field := range []string{"step_number", "title", "instruction", "expected_outcome"} {
			if _, ok := step[field]; !ok {
				return fmt.Errorf("steps[%d] missing field %q", i, field)
			}
		}
	}

	var metrics map[string]json.RawMessage
	if err := json.Unmarshal(fields["statistical_metrics"], &metrics); err != nil {
		return errors.New("statistical_metrics must be an object")
	}

	return nil
}

// normalizeLists replaces absent optional lists with real empty slices
// so clients always see arrays.
func normalizeLists(resp *planResponse) {
	if resp.CallProIf == nil {
		resp.CallProIf = []string{}
	}
	if resp.PartsNeeded == nil {
		resp.PartsNeeded = []string{}
	}
	for i := range resp.Steps {
		if resp.Steps[i].ToolsForThisStep == nil {
			resp.Steps[i].ToolsForThisStep = []string{}
		}
	}
}

func aggregateTools(steps []models.FixStep) []string {
	seen := make(map[string]struct{})
	for _, s := range steps {
		for _, tool := range s.ToolsForThisStep {
			seen[tool] = struct{}{}
		}
	}
	tools := make([]string, 0, len(seen))
	for tool := range seen {
		tools = append(tools, tool)
	}
	slices.Sort(tools)
	return tools
}

func totalMinutes(steps []models.FixStep) int {
	total := 0
	for _, s := range steps {
		if s.EstimatedTimeMinutes != nil {
			total += *s.EstimatedTimeMinutes
		}
	}
	return total
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
