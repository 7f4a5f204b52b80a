// Package reason implements the first reasoning stage: logical
// refinement of an Observation, an independent risk re-assessment, and
// the retrieval gate with its optimized search query.
package reason

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kiranshivaraju/fixsight/internal/groq"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// stage1MaxTokens bounds the refinement completion.
const stage1MaxTokens = 3000

// ErrInvalidOutput marks stage-1 model output that failed structural
// validation. Hard failure for the pipeline run; never retried.
var ErrInvalidOutput = errors.New("reasoner returned invalid output")

// Reasoner runs the stage-1 refinement call.
type Reasoner struct {
	client groq.Client
}

func New(client groq.Client) *Reasoner {
	return &Reasoner{client: client}
}

// Refine takes a validated Observation and returns the refined diagnosis
// with risk assessment, retrieval decision, and search query. Any
// structural violation in the model output fails the whole stage; there
// is no partial acceptance.
func (r *Reasoner) Refine(ctx context.Context, obs *models.Observation) (*models.ReasonerOutput, error) {
	if obs == nil {
		return nil, fmt.Errorf("refine: nil observation")
	}

	completion, err := r.client.Complete(ctx, groq.CompletionRequest{
		UserPrompt: buildStage1Prompt(obs),
		JSONMode:   true,
		MaxTokens:  stage1MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("stage-1 completion: %w", err)
	}

	raw := []byte(completion.Content)
	if err := validateStage1(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	var out models.ReasonerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	out.Metrics = finalizeMetrics(out.Metrics, obs)

	slog.Debug("observation refined",
		"model", completion.Model,
		"tokens", completion.TokensUsed,
		"confidence", out.Metrics.Confidence,
		"requires_rag", out.RequiresRAG)

	return &out, nil
}

// validateStage1 enforces the structural contract on raw model output:
// required fields present, enumerations respected, confidence in range.
func validateStage1(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("not a JSON object: %v", err)
	}

	required := []string{
		"refined_issue",
		"refined_location",
		"refined_fixture",
		"risk_assessment",
		"requires_rag",
		"rag_query",
		"rag_query_keywords",
		"statistical_metrics",
		"reasoning_trace",
	}
	for _, f := range required {
		if _, ok := fields[f]; !ok {
			return fmt.Errorf("missing required field %q", f)
		}
	}

	var risk map[string]json.RawMessage
	if err := json.Unmarshal(fields["risk_assessment"], &risk); err != nil {
		return errors.New("risk_assessment must be an object")
	}
	for _, f := range []string{"level", "reasoning", "immediate_danger_present", "time_sensitivity", "escalation_triggers"} {
		if _, ok := risk[f]; !ok {
			return fmt.Errorf("risk_assessment missing field %q", f)
		}
	}

	level := decodeString(risk["level"])
	if level != models.DangerLow && level != models.DangerMedium && level != models.DangerHigh {
		return fmt.Errorf("invalid risk level %q (must be low/medium/high)", level)
	}

	switch ts := decodeString(risk["time_sensitivity"]); ts {
	case models.TimeSensitivityImmediate, models.TimeSensitivityHours,
		models.TimeSensitivityDays, models.TimeSensitivityWeeks:
	default:
		return fmt.Errorf("invalid time_sensitivity %q", ts)
	}

	var metrics map[string]json.RawMessage
	if err := json.Unmarshal(fields["statistical_metrics"], &metrics); err != nil {
		return errors.New("statistical_metrics must be an object")
	}
	confRaw, ok := metrics["confidence"]
	if !ok {
		return errors.New("statistical_metrics missing confidence")
	}
	var confidence float64
	if err := json.Unmarshal(confRaw, &confidence); err != nil || confidence < 0 || confidence > 1 {
		return fmt.Errorf("invalid confidence %s (must be 0.0-1.0)", string(confRaw))
	}

	var keywords []string
	if err := json.Unmarshal(fields["rag_query_keywords"], &keywords); err != nil {
		return errors.New("rag_query_keywords must be a list of strings")
	}

	return nil
}

// finalizeMetrics clamps reasoning-quality numbers to their documented
// ranges and installs the low-vision-confidence flag, which the model
// cannot be trusted to add itself.
func finalizeMetrics(m models.StatisticalMetrics, obs *models.Observation) models.StatisticalMetrics {
	m.Confidence = clamp01(m.Confidence)

	if m.ReasoningSteps < 1 {
		m.ReasoningSteps = 1
	} else if m.ReasoningSteps > 20 {
		m.ReasoningSteps = 20
	}

	if m.AlternativeHypothesesConsidered < 0 {
		m.AlternativeHypothesesConsidered = 0
	} else if m.AlternativeHypothesesConsidered > 10 {
		m.AlternativeHypothesesConsidered = 10
	}

	if top := obs.TopIssue(); top != nil && top.Confidence < 0.5 &&
		!slices.Contains(m.UncertaintyFlags, models.FlagLowVisionConfidence) {
		m.UncertaintyFlags = append(m.UncertaintyFlags, models.FlagLowVisionConfidence)
	}

	return m
}

func decodeString(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
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
