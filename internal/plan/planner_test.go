package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/kiranshivaraju/fixsight/internal/groq"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// fakeClient implements groq.Client with a canned response.
type fakeClient struct {
	lastReq groq.CompletionRequest
	called  bool
	content string
	err     error
}

func (f *fakeClient) Complete(_ context.Context, req groq.CompletionRequest) (*groq.Completion, error) {
	f.called = true
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &groq.Completion{Content: f.content, Model: "llama-3.3-70b", TokensUsed: 512}, nil
}

func passagesFixture(n int) []models.RetrievedPassage {
	passages := make([]models.RetrievedPassage, 0, n)
	for i := 0; i < n; i++ {
		score := 0.9 - float64(i)*0.1
		passages = append(passages, models.RetrievedPassage{
			Rank:    i + 1,
			Score:   &score,
			Text:    fmt.Sprintf("Manual passage %d about flapper valve seating and chain slack.", i+1),
			Source:  "toilet-repair.md",
			ChunkID: fmt.Sprintf("toilet-repair.md#%d", i),
		})
	}
	return passages
}

// planFields returns a complete valid stage-2 response as a mutable map.
func planFields() map[string]any {
	return map[string]any{
		"summary":      "The flapper valve is not sealing. Replace it and adjust the chain slack.",
		"danger_level": "low",
		"steps": []map[string]any{
			{
				"step_number":            1,
				"title":                  "Shut off the water supply",
				"instruction":            "Turn the shutoff valve behind the toilet clockwise until it stops, then flush to drain the tank.",
				"safety_note":            "Wipe up any drips so the floor stays dry.",
				"expected_outcome":       "Tank empty and refill stopped",
				"estimated_time_minutes": 5,
				"tools_for_this_step":    []string{"Towel"},
			},
			{
				"step_number":            2,
				"title":                  "Replace the flapper valve",
				"instruction":            "Unclip the old flapper from the overflow tube pegs, attach the new one, and reconnect the chain with slight slack.",
				"expected_outcome":       "New flapper seats flat over the flush valve",
				"estimated_time_minutes": 10,
				"tools_for_this_step":    []string{"Replacement flapper", "Towel"},
			},
		},
		"call_pro_if":       []string{"Tank still leaks after flapper replacement"},
		"tools_needed":      []string{"Excavator"},
		"parts_needed":      []string{"Flapper valve"},
		"cited_doc_indices": []int{1, 2},
		"statistical_metrics": map[string]any{
			"confidence":                        0.8,
			"uncertainty_flags":                 []string{},
			"reasoning_steps":                   4,
			"alternative_hypotheses_considered": 1,
		},
	}
}

func planJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

// --- Generate: main path ---

func TestGenerate_MainPath(t *testing.T) {
	client := &fakeClient{content: planJSON(t, planFields())}
	p := New(client)
	retrieval := &models.VectorRetrievalMetrics{NumDocsRetrieved: 3}

	fixPlan, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(3), retrieval)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fixPlan.FallbackToVisionOnly {
		t.Error("main path marked as fallback")
	}
	if len(fixPlan.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(fixPlan.Steps))
	}
	if fixPlan.DangerLevel != models.DangerLow {
		t.Errorf("danger level = %q", fixPlan.DangerLevel)
	}

	// Aggregated from per-step tools, not the model's own tools_needed.
	if !slices.Equal(fixPlan.ToolsNeeded, []string{"Replacement flapper", "Towel"}) {
		t.Errorf("tools = %v, want aggregated [Replacement flapper Towel]", fixPlan.ToolsNeeded)
	}
	if slices.Contains(fixPlan.ToolsNeeded, "Excavator") {
		t.Error("model-proposed tools_needed leaked into the plan")
	}

	if fixPlan.EstimatedTotalTimeMinutes == nil || *fixPlan.EstimatedTotalTimeMinutes != 15 {
		t.Errorf("total time = %v, want 15", fixPlan.EstimatedTotalTimeMinutes)
	}
	if fixPlan.RAGRetrievalMetrics != retrieval {
		t.Error("retrieval metrics not attached")
	}
	if !slices.Equal(fixPlan.CitationTracker.CitedDocIndices, []int{1, 2}) {
		t.Errorf("cited = %v", fixPlan.CitationTracker.CitedDocIndices)
	}
	if !slices.Equal(fixPlan.CitationTracker.UncitedDocIndices, []int{3}) {
		t.Errorf("uncited = %v", fixPlan.CitationTracker.UncitedDocIndices)
	}
}

func TestGenerate_RequestShape(t *testing.T) {
	client := &fakeClient{content: planJSON(t, planFields())}
	p := New(client)

	if _, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !client.lastReq.JSONMode {
		t.Error("stage-2 call must use JSON mode")
	}
	if client.lastReq.MaxTokens != stage2MaxTokens {
		t.Errorf("max tokens = %d, want %d", client.lastReq.MaxTokens, stage2MaxTokens)
	}

	prompt := client.lastReq.UserPrompt
	if !strings.Contains(prompt, "[DOC #1] (similarity: 0.900, source: toilet-repair.md)") {
		t.Error("prompt missing numbered passage header")
	}
	if !strings.Contains(prompt, "Manual passage 2") {
		t.Error("prompt missing second passage text")
	}
	if !strings.Contains(prompt, "KEY DIAGNOSIS SUMMARY") {
		t.Error("prompt missing diagnosis summary block")
	}
	if !strings.Contains(prompt, "Toilet flapper valve not sealing after flush") {
		t.Error("prompt missing refined issue")
	}
	if !strings.Contains(prompt, "RETRIEVED REPAIR MANUALS (2 documents)") {
		t.Error("prompt missing document count")
	}
}

func TestGenerate_ScorelessPassageFormatted(t *testing.T) {
	client := &fakeClient{content: planJSON(t, planFields())}
	p := New(client)

	passages := passagesFixture(1)
	passages[0].Score = nil

	if _, err := p.Generate(context.Background(), reasonedFixture(), passages, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(client.lastReq.UserPrompt, "(similarity: n/a, source: toilet-repair.md)") {
		t.Error("scoreless passage not rendered as n/a")
	}
}

// --- Generate: fallback gate ---

func TestGenerate_FallbackWhenRAGNotRequired(t *testing.T) {
	client := &fakeClient{err: errors.New("must not be called")}
	p := New(client)

	reasoned := reasonedFixture()
	reasoned.RequiresRAG = false

	fixPlan, err := p.Generate(context.Background(), reasoned, passagesFixture(3), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fixPlan.FallbackToVisionOnly {
		t.Error("expected fallback plan")
	}
	if client.called {
		t.Error("model called despite requires_rag=false")
	}
}

func TestGenerate_FallbackWhenZeroPassages(t *testing.T) {
	client := &fakeClient{err: errors.New("must not be called")}
	p := New(client)

	fixPlan, err := p.Generate(context.Background(), reasonedFixture(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fixPlan.FallbackToVisionOnly {
		t.Error("expected fallback plan")
	}
	if fixPlan.CitationTracker.HallucinationRiskScore != 1.0 {
		t.Errorf("risk = %v, want 1.0", fixPlan.CitationTracker.HallucinationRiskScore)
	}
	if fixPlan.Metrics.Confidence > 0.5 {
		t.Errorf("confidence = %v, want <= 0.5", fixPlan.Metrics.Confidence)
	}
}

// --- Generate: validation failures ---

func TestGenerate_MissingRequiredField(t *testing.T) {
	fields := planFields()
	delete(fields, "summary")
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	_, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil)
	if !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	if !strings.Contains(err.Error(), "summary") {
		t.Errorf("error does not name the missing field: %v", err)
	}
}

func TestGenerate_BadDangerLevel(t *testing.T) {
	fields := planFields()
	fields["danger_level"] = "severe"
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	_, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil)
	if !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	if !strings.Contains(err.Error(), "severe") {
		t.Errorf("error does not name the bad level: %v", err)
	}
}

func TestGenerate_EmptySteps(t *testing.T) {
	fields := planFields()
	fields["steps"] = []map[string]any{}
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	_, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil)
	if !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	if !strings.Contains(err.Error(), "non-empty") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestGenerate_StepMissingField(t *testing.T) {
	fields := planFields()
	steps := fields["steps"].([]map[string]any)
	delete(steps[1], "expected_outcome")
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	_, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil)
	if !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	if !strings.Contains(err.Error(), "steps[1]") {
		t.Errorf("error does not locate the step: %v", err)
	}
}

func TestGenerate_TooManySteps(t *testing.T) {
	fields := planFields()
	steps := make([]map[string]any, 0, 16)
	for i := 1; i <= 16; i++ {
		steps = append(steps, map[string]any{
			"step_number":         i,
			"title":               fmt.Sprintf("Step number %d", i),
			"instruction":         "Do this part of the repair carefully and check the result.",
			"expected_outcome":    "Part of repair done",
			"tools_for_this_step": []string{},
		})
	}
	fields["steps"] = steps
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	if _, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestGenerate_MalformedJSON(t *testing.T) {
	client := &fakeClient{content: "the model rambled instead"}
	p := New(client)

	if _, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

// --- Generate: citation math through the pipeline ---

func TestGenerate_NoCitationsFlagged(t *testing.T) {
	fields := planFields()
	fields["cited_doc_indices"] = []int{}
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	fixPlan, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(3), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fixPlan.CitationTracker.HallucinationRiskScore != 1.0 {
		t.Errorf("risk = %v, want 1.0", fixPlan.CitationTracker.HallucinationRiskScore)
	}
	if !slices.Equal(fixPlan.CitationTracker.UncitedDocIndices, []int{1, 2, 3}) {
		t.Errorf("uncited = %v", fixPlan.CitationTracker.UncitedDocIndices)
	}
	if !slices.Contains(fixPlan.Metrics.UncertaintyFlags, models.FlagHighHallucinationRisk) {
		t.Errorf("missing hallucination flag: %v", fixPlan.Metrics.UncertaintyFlags)
	}
	if !slices.Contains(fixPlan.Metrics.UncertaintyFlags, models.FlagLowCitationCoverage) {
		t.Errorf("missing coverage flag: %v", fixPlan.Metrics.UncertaintyFlags)
	}
}

func TestGenerate_CoverageUsesSerializedSteps(t *testing.T) {
	fields := planFields()
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	fixPlan, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(3), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stepsJSON, err := json.Marshal(fixPlan.Steps)
	if err != nil {
		t.Fatalf("marshal steps: %v", err)
	}
	want := math.Min(1.0, float64(2*charsPerCitation)/float64(len(stepsJSON)))
	if math.Abs(fixPlan.CitationTracker.CitationCoverage-want) > 1e-9 {
		t.Errorf("coverage = %v, want %v", fixPlan.CitationTracker.CitationCoverage, want)
	}
}

// --- Generate: errors and edges ---

func TestGenerate_ClientError(t *testing.T) {
	client := &fakeClient{err: groq.ErrGroqUnreachable}
	p := New(client)

	_, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil)
	if !errors.Is(err, groq.ErrGroqUnreachable) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
	if errors.Is(err, ErrInvalidPlan) {
		t.Error("transport error misclassified as validation failure")
	}
}

func TestGenerate_NilReasonerOutput(t *testing.T) {
	p := New(&fakeClient{content: "{}"})

	if _, err := p.Generate(context.Background(), nil, passagesFixture(2), nil); err == nil {
		t.Fatal("expected error for nil reasoner output")
	}
}

func TestGenerate_AbsentListsBecomeEmpty(t *testing.T) {
	fields := planFields()
	delete(fields, "parts_needed")
	steps := fields["steps"].([]map[string]any)
	delete(steps[0], "tools_for_this_step")
	delete(steps[1], "tools_for_this_step")
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	fixPlan, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fixPlan.PartsNeeded == nil || len(fixPlan.PartsNeeded) != 0 {
		t.Errorf("parts = %#v, want empty slice", fixPlan.PartsNeeded)
	}
	if fixPlan.Steps[0].ToolsForThisStep == nil {
		t.Error("step tools left nil")
	}
	if len(fixPlan.ToolsNeeded) != 0 {
		t.Errorf("tools = %v, want none", fixPlan.ToolsNeeded)
	}
}

func TestGenerate_NoTimeEstimatesOmitsTotal(t *testing.T) {
	fields := planFields()
	steps := fields["steps"].([]map[string]any)
	delete(steps[0], "estimated_time_minutes")
	delete(steps[1], "estimated_time_minutes")
	client := &fakeClient{content: planJSON(t, fields)}
	p := New(client)

	fixPlan, err := p.Generate(context.Background(), reasonedFixture(), passagesFixture(2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fixPlan.EstimatedTotalTimeMinutes != nil {
		t.Errorf("total time = %v, want nil", *fixPlan.EstimatedTotalTimeMinutes)
	}
}
