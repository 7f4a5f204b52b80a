package ragquery

import (
	"strings"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// QueryBuilder constructs retrieval queries for the knowledge base.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type QueryBuilder struct{}

// DefaultQuery is the last-resort retrieval query when neither an
// observation nor keywords are available.
const DefaultQuery = "home repair troubleshooting steps"

// maxSymptomsLen caps the symptom clause so a chatty extraction cannot
// crowd the rest of the query out of the embedding.
const maxSymptomsLen = 220

// fixTail biases retrieval toward manual-style passages.
const fixTail = "step-by-step fix, troubleshooting, tools checklist"

// FromObservation returns a deterministic retrieval query describing
// the observation. It backs the pipeline whenever the reasoner declines
// to synthesize a query of its own.
func (b QueryBuilder) FromObservation(o *models.Observation) string {
	if o == nil {
		return DefaultQuery
	}

	parts := make([]string, 0, 10)
	top := o.TopIssue()

	if c := b.pickCategory(o, top); c != "" {
		parts = append(parts, "category: "+c)
	}
	if f := strings.TrimSpace(o.Fixture); f != "" {
		parts = append(parts, "fixture: "+f)
	}
	if l := strings.TrimSpace(o.Location); l != "" {
		parts = append(parts, "location: "+l)
	}
	if top != nil {
		if n := strings.TrimSpace(top.IssueName); n != "" {
			parts = append(parts, "likely issue: "+n)
		}
		if c := strings.TrimSpace(top.SuspectedCause); c != "" {
			parts = append(parts, "suspected cause: "+c)
		}
	}
	if s := b.buildSymptoms(o.ObservedSymptoms); s != "" {
		parts = append(parts, "symptoms: "+s)
	}
	if d := strings.TrimSpace(o.OverallDangerLevel); d != "" {
		parts = append(parts, "danger: "+d)
	}
	if o.RequiresShutoff {
		parts = append(parts, "safety: shutoff recommended")
	}
	if o.WaterPresent {
		parts = append(parts, "water present")
	}

	parts = append(parts, fixTail)
	return strings.Join(parts, " | ")
}

// FromKeywords returns a retrieval query built from reasoner keywords,
// or "" when no usable keyword remains. Callers fall through to
// FromObservation in that case.
func (b QueryBuilder) FromKeywords(keywords []string) string {
	kept := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, ", ") + " | " + fixTail
}

// pickCategory prefers the top issue's trade category over the
// observation's fixture category.
func (b QueryBuilder) pickCategory(o *models.Observation, top *models.ProspectedIssue) string {
	if top != nil {
		if c := strings.TrimSpace(top.Category); c != "" {
			return c
		}
	}
	return strings.TrimSpace(o.Category)
}

func (b QueryBuilder) buildSymptoms(symptoms []string) string {
	kept := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	joined := strings.Join(kept, ", ")
	if len(joined) > maxSymptomsLen {
		joined = joined[:maxSymptomsLen]
	}
	return joined
}
