package mock

import (
	"context"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// cannedObservation is a complete valid extraction for a running toilet,
// fenced the way Gemini usually fences JSON output.
const cannedObservation = "```json\n" + `{
  "category": "toilet",
  "visual_signals": {"tank_lid_off": true, "water_on_floor": false},
  "prospected_issues": [
    {"rank": 1, "issue_name": "Toilet keeps running", "suspected_cause": "Worn flapper not sealing the flush valve", "confidence": 0.82, "symptoms_match": ["continuous refill sound", "water trickling into bowl"], "category": "toilet"},
    {"rank": 2, "issue_name": "Fill valve set too high", "suspected_cause": "Float adjusted above the overflow tube", "confidence": 0.55, "symptoms_match": ["water at overflow tube"], "category": "toilet"},
    {"rank": 3, "issue_name": "Flush chain snagged", "suspected_cause": "Chain too short, holding the flapper open", "confidence": 0.31, "symptoms_match": [], "category": "toilet"}
  ],
  "overall_danger_level": "low",
  "location": "bathroom",
  "fixture": "toilet",
  "observed_symptoms": ["continuous running water sound", "tank never reaches the fill line"],
  "requires_shutoff": false,
  "water_present": false,
  "immediate_action": "",
  "professional_needed": false,
  "no_issue": false
}` + "\n```"

// MockProvider satisfies models.VisionProvider for testing and for
// running the server without a Gemini key.
type MockProvider struct {
	Name_       string
	ExtractFunc func(ctx context.Context, req models.VisionRequest) (*models.VisionResponse, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Extract(ctx context.Context, req models.VisionRequest) (*models.VisionResponse, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}
	return &models.VisionResponse{Text: cannedObservation, Model: "mock-v1"}, nil
}

// NewProvider returns a MockProvider with a fixed realistic response.
func NewProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ExtractFunc: func(_ context.Context, _ models.VisionRequest) (*models.VisionResponse, error) {
			return &models.VisionResponse{
				Text:       cannedObservation,
				Model:      "mock-v1",
				TokensUsed: 714,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ExtractFunc: func(_ context.Context, _ models.VisionRequest) (*models.VisionResponse, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is
// cancelled, then surfaces the context error like a real deadline would.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ExtractFunc: func(ctx context.Context, _ models.VisionRequest) (*models.VisionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

// Compile-time check that MockProvider implements VisionProvider.
var _ models.VisionProvider = (*MockProvider)(nil)
