package reason

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// stage1PromptTemplate drives the refinement call. The OUTPUT FORMAT
// block mirrors models.ReasonerOutput exactly; validation rejects
// anything that drifts from it.
const stage1PromptTemplate = `You are a careful reasoning agent for home repair diagnosis.

Your task is to analyze the OBSERVATION JSON from a vision model and perform logical reasoning to:
1. **Refine the diagnosis** - Check for inconsistencies, add context, improve precision
2. **Re-assess risk** - Use logical reasoning (not just pattern matching) to determine true risk level
3. **Decide if RAG is needed** - Does this issue require manual/documentation retrieval?
4. **Generate semantic query** - Optimize query for vector embedding search
5. **Track uncertainty** - Identify what's uncertain or ambiguous

OBSERVATION JSON (from Vision Model):
` + "```json\n%s\n```" + `

KEY OBSERVATIONS:
- Fixture category: %s
- Location: %s
- Top issue: %s (confidence: %.2f)
- Danger level (vision): %s
- No issue detected: %t
- Symptoms: %s

REASONING INSTRUCTIONS:

1. **Logical Consistency Check**:
   - Does the top issue match the symptoms?
   - Are the confidence scores reasonable?
   - Is the danger level consistent with the issue?
   - Any contradictions in the observation?

2. **Risk Re-Assessment** (use reasoning, not just vision output):
   - Is there immediate danger? (electrical + water, gas leak, structural collapse, sewage backup)
   - Time sensitivity: immediate / hours / days / weeks
   - What conditions would require escalating to a professional?
   - Consider: water damage risk, safety hazards, complexity

3. **RAG Decision**:
   - Set requires_rag=false if:
     * No issue detected (no_issue=true)
     * Issue is trivial (e.g., cosmetic stain, already resolved)
     * User can safely ignore it
   - Set requires_rag=true if:
     * Issue requires repair steps
     * Professional knowledge needed
     * Safety procedures required

4. **Semantic Query Generation** (optimize for vector embedding):
   - Use technical terms (e.g., "toilet flapper valve replacement" not "toilet broken")
   - Include fixture type, issue type, and key symptoms
   - Make it semantic search friendly (how would a repair manual describe this?)
   - Example good queries:
     * "toilet clog paper blockage plunger technique"
     * "water heater pilot light won't stay lit troubleshooting"
     * "sink drain slow drainage hair clog removal"
   - Extract 3-5 keywords for fallback search

5. **Uncertainty Tracking**:
   - List uncertainty sources:
     * "low_image_quality" - blurry, dark, or unclear image
     * "ambiguous_symptom" - symptom could indicate multiple issues
     * "missing_context" - need more information (e.g., "does it make noise?")
     * "contradictory_signals" - vision output has inconsistencies
     * "edge_case" - unusual or rare scenario
   - Consider alternative hypotheses (what else could this be?)

6. **Confidence Scoring** (0.0 to 1.0):
   - High confidence (0.8-1.0): Clear symptoms, consistent data, common issue
   - Medium confidence (0.5-0.79): Some ambiguity, multiple possibilities
   - Low confidence (0.0-0.49): Unclear symptoms, contradictory data, rare issue

OUTPUT FORMAT (strict JSON schema):
{
  "refined_issue": "Precise issue name (10-200 chars)",
  "refined_location": "Location with context (5-100 chars)",
  "refined_fixture": "Specific fixture/component (3-100 chars)",

  "risk_assessment": {
    "level": "low|medium|high",
    "reasoning": "Detailed reasoning for risk level (10-500 chars)",
    "immediate_danger_present": true|false,
    "time_sensitivity": "immediate|hours|days|weeks",
    "escalation_triggers": ["condition 1", "condition 2", ...]
  },

  "requires_rag": true|false,
  "rag_query": "Semantic query for vector search (5-300 chars)",
  "rag_query_keywords": ["keyword1", "keyword2", ...],

  "statistical_metrics": {
    "confidence": 0.0-1.0,
    "uncertainty_flags": ["flag1", "flag2", ...],
    "reasoning_steps": 1-20,
    "alternative_hypotheses_considered": 0-10
  },

  "reasoning_trace": "Step-by-step reasoning showing how you reached these conclusions (20-1000 chars)"
}

CRITICAL RULES:
- Output ONLY valid JSON (no markdown, no commentary)
- Be conservative with risk assessment (better safe than sorry)
- If uncertain, set appropriate uncertainty_flags
- For no_issue=true cases: requires_rag=false, confidence=high, risk=low
- Reasoning trace must show your step-by-step logic (transparency for debugging)

Now analyze the observation and output your reasoning JSON:
`

// buildStage1Prompt embeds the full observation plus a short summary of
// the fields the model most often gets wrong when left to skim.
func buildStage1Prompt(obs *models.Observation) string {
	raw, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		raw = []byte("{}")
	}

	topName := "No issue detected"
	topConfidence := 0.0
	if top := obs.TopIssue(); top != nil {
		topName = top.IssueName
		topConfidence = top.Confidence
	}

	symptoms := "none"
	if len(obs.ObservedSymptoms) > 0 {
		symptoms = strings.Join(obs.ObservedSymptoms, ", ")
	}

	return fmt.Sprintf(stage1PromptTemplate,
		string(raw),
		obs.Category,
		obs.Location,
		topName,
		topConfidence,
		obs.OverallDangerLevel,
		obs.NoIssue,
		symptoms,
	)
}
