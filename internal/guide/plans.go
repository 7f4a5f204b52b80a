package guide

import "github.com/kiranshivaraju/fixsight/pkg/models"

// toiletUnclogPlan is the one walkthrough the demo supports: clearing a
// clogged, overflow-prone toilet without flushing it worse.
var toiletUnclogPlan = models.GuidePlan{
	ID:       "toilet_unclog_v1",
	Category: models.CategoryToilet,
	Title:    "Clear a clogged toilet",
	Steps: []models.GuideStep{
		{
			Number:      1,
			Title:       "Stop the water",
			Instruction: "Reach behind the toilet and turn the shutoff valve clockwise until it stops. Do not flush again.",
			Expectation: "Water level stops rising",
		},
		{
			Number:      2,
			Title:       "Plunge the bowl",
			Instruction: "Seat a flange plunger over the drain hole and push-pull firmly for 20-30 seconds without breaking the seal.",
			Expectation: "Water starts draining from the bowl",
		},
		{
			Number:      3,
			Title:       "Check the water level",
			Instruction: "Wait a minute and watch the bowl. The level should settle back to normal on its own.",
			Expectation: "Bowl holds a normal water level",
		},
		{
			Number:      4,
			Title:       "Test flush",
			Instruction: "Open the shutoff valve, let the tank refill, then do one test flush with the tank lid off.",
			Expectation: "Bowl drains fully without rising",
		},
	},
}

// PlanForCategory returns the fixed walkthrough plan for a fixture
// category, or false when the category has no guided fix.
func PlanForCategory(category string) (*models.GuidePlan, bool) {
	if category == models.CategoryToilet {
		plan := toiletUnclogPlan
		return &plan, true
	}
	return nil, false
}
