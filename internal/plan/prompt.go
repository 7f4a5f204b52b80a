package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// stage2PromptTemplate drives the planning call. Passages are numbered
// [DOC #n] so the model can cite them back by index.
const stage2PromptTemplate = `You are a careful home repair planning assistant.

Your task is to generate a **safe, structured, step-by-step fix plan** based on:
1. REFINED DIAGNOSIS from the reasoning stage (logical analysis of the issue)
2. RETRIEVED REPAIR MANUALS from vector search

REFINED DIAGNOSIS:
` + "```json\n%s\n```" + `

KEY DIAGNOSIS SUMMARY:
- Issue: %s
- Location: %s
- Fixture: %s
- Risk: %s (%s)
- Immediate danger: %t
- Time sensitivity: %s

RETRIEVED REPAIR MANUALS (%d documents):
%s

PLANNING INSTRUCTIONS:

1. **Citation Requirement** (CRITICAL for hallucination prevention):
   - Every factual claim, procedure, or technical detail MUST come from the retrieved docs
   - If you cite information from a doc, include its number in cited_doc_indices[]
   - Example: If you mention "flapper valve replacement" and it comes from DOC #2, include 2 in cited_doc_indices
   - If you're uncertain or a doc doesn't cover a step, say so explicitly and suggest calling a pro

2. **Step-by-Step Plan**:
   - Break down the fix into 1-15 clear, actionable steps
   - Each step should have:
     * step_number (1, 2, 3, ...)
     * title (short, 5-100 chars)
     * instruction (detailed, 10-500 chars)
     * safety_note (if applicable, max 300 chars)
     * expected_outcome (what should happen if done correctly, 5-200 chars)
     * estimated_time_minutes (optional, 1-120 minutes)
     * tools_for_this_step (list of tools needed for this specific step)

3. **Safety-First Approach**:
   - If risk level is HIGH or immediate_danger_present=true:
     * First step should be safety action (shutoff, evacuate, ventilate, etc.)
     * Include explicit safety_note for dangerous steps
   - If uncertain about a step, add it to call_pro_if[] instead of guessing

4. **Escalation Conditions** (call_pro_if):
   - List conditions that require calling a professional
   - Examples: "Sewage backup continues after 2 attempts", "Gas smell persists", "Electrical sparking"
   - Be conservative: better to escalate than cause damage/injury

5. **Tools and Parts**:
   - List all tools needed (e.g., "Adjustable wrench", "Plunger", "Bucket")
   - List replacement parts that might be needed (e.g., "Flapper valve", "Wax ring")
   - Only list items mentioned in the retrieved docs or essential basics

6. **Summary**:
   - 1-2 sentences explaining what's happening and the fix approach
   - Example: "Toilet is clogged due to paper buildup. We'll use a plunger to clear the blockage, then test the flush."

OUTPUT FORMAT (strict JSON schema):
{
  "summary": "1-2 sentence fix summary (20-500 chars)",
  "danger_level": "low|medium|high",

  "steps": [
    {
      "step_number": 1,
      "title": "Step title",
      "instruction": "Detailed instruction",
      "safety_note": "Safety warning (optional)",
      "expected_outcome": "What should happen",
      "estimated_time_minutes": 5,  // optional
      "tools_for_this_step": ["tool1", "tool2"]
    },
    ...
  ],

  "call_pro_if": ["condition 1", "condition 2", ...],
  "tools_needed": ["tool1", "tool2", ...],  // Will be auto-aggregated, but you can provide
  "parts_needed": ["part1", "part2", ...],

  "cited_doc_indices": [1, 2, 3, ...],  // Which DOC numbers did you cite?

  "statistical_metrics": {
    "confidence": 0.0-1.0,  // How confident are you in this plan?
    "uncertainty_flags": ["flag1", ...],  // What's uncertain?
    "reasoning_steps": 1-20,
    "alternative_hypotheses_considered": 0-10
  }
}

CRITICAL RULES:
- Output ONLY valid JSON (no markdown, no commentary)
- Every step must be grounded in the retrieved docs (cite your sources!)
- If docs don't cover something, don't guess - add to call_pro_if[] instead
- Safety notes are mandatory for dangerous steps (electrical, gas, heights, chemicals, sewage)
- Be conservative: if uncertain, escalate to professional
- Danger level should match or be more conservative than the diagnosis risk assessment

CITATION TRACKING EXAMPLE:
If DOC #1 says "Use a flange plunger" and DOC #3 says "Plunge 20-30 seconds", your cited_doc_indices should be [1, 3].

Now generate the structured fix plan JSON:
`

func buildStage2Prompt(reasoned *models.ReasonerOutput, passages []models.RetrievedPassage) string {
	raw, err := json.MarshalIndent(reasoned, "", "  ")
	if err != nil {
		raw = []byte("{}")
	}

	risk := reasoned.RiskAssessment
	return fmt.Sprintf(stage2PromptTemplate,
		string(raw),
		reasoned.RefinedIssue,
		reasoned.RefinedLocation,
		reasoned.RefinedFixture,
		risk.Level,
		risk.Reasoning,
		risk.ImmediateDangerPresent,
		risk.TimeSensitivity,
		len(passages),
		formatPassages(passages),
	)
}

func formatPassages(passages []models.RetrievedPassage) string {
	var b strings.Builder
	for _, p := range passages {
		score := "n/a"
		if p.Score != nil {
			score = fmt.Sprintf("%.3f", *p.Score)
		}
		fmt.Fprintf(&b, "\n[DOC #%d] (similarity: %s, source: %s)\n%s\n", p.Rank, score, p.Source, p.Text)
	}
	return b.String()
}
