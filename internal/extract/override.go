package extract

import "github.com/kiranshivaraju/fixsight/pkg/models"

// overrideKey identifies a (fixture category, visual signal) pair that
// forces a fixed diagnosis.
type overrideKey struct {
	category string
	signal   string
}

// demoOverride is the forced outcome for one override row.
type demoOverride struct {
	issueName       string
	suspectedCause  string
	confidence      float64
	dangerLevel     string
	requiresShutoff bool
	immediateAction string
}

// overrides pins known demo frames to stable diagnoses. Water pooling
// around a toilet always reads as an active overflow with shutoff
// guidance, no matter how the model ranked its candidates. Other fixture
// categories are never touched.
var overrides = map[overrideKey]demoOverride{
	{models.CategoryToilet, "water_on_floor"}: {
		issueName:       "Toilet overflow or supply leak",
		suspectedCause:  "Clogged drain or failed supply connection letting water escape the bowl or tank",
		confidence:      0.95,
		dangerLevel:     models.DangerHigh,
		requiresShutoff: true,
		immediateAction: "Turn the shutoff valve behind the toilet clockwise and keep the floor clear",
	},
}

// applyOverrides rewrites the top-ranked issue and safety fields when an
// override row matches a set visual signal. A pure data transform: it
// cannot fail, and an observation with no rank-1 issue is left untouched.
func applyOverrides(obs *models.Observation) {
	if obs == nil {
		return
	}
	for signal, set := range obs.VisualSignals {
		if !set {
			continue
		}
		o, ok := overrides[overrideKey{obs.Category, signal}]
		if !ok {
			continue
		}
		top := obs.TopIssue()
		if top == nil {
			return
		}
		top.IssueName = o.issueName
		top.SuspectedCause = o.suspectedCause
		top.Confidence = o.confidence
		top.Category = obs.Category
		obs.OverallDangerLevel = o.dangerLevel
		obs.RequiresShutoff = o.requiresShutoff
		obs.ImmediateAction = o.immediateAction
		return
	}
}
