package handler

// Contract test: real services over the in-process store, reached
// through the real router, with only the model providers stubbed.

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/fixsight/internal/api"
	"github.com/kiranshivaraju/fixsight/internal/config"
	"github.com/kiranshivaraju/fixsight/internal/guide"
	"github.com/kiranshivaraju/fixsight/internal/metrics"
	"github.com/kiranshivaraju/fixsight/internal/retrieval"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/internal/solution"
	"github.com/kiranshivaraju/fixsight/internal/triage"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// --- provider stubs ---

type stubExtractor struct {
	obs *models.Observation
}

func (s *stubExtractor) Extract(_ context.Context, _ []byte, _ string) (*models.Observation, error) {
	return s.obs, nil
}

type stubRefiner struct{}

func (stubRefiner) Refine(_ context.Context, obs *models.Observation) (*models.ReasonerOutput, error) {
	return &models.ReasonerOutput{
		RefinedIssue:    "Toilet drain is clogged near the trap",
		RefinedLocation: obs.Location,
		RefinedFixture:  obs.Fixture,
		RiskAssessment: models.RiskAssessment{
			Level:           models.DangerLow,
			Reasoning:       "Standing water only, no overflow in sight",
			TimeSensitivity: models.TimeSensitivityHours,
		},
		RequiresRAG:    false,
		RAGQuery:       "toilet clog clearing",
		Metrics:        models.StatisticalMetrics{Confidence: 0.8, ReasoningSteps: 3},
		ReasoningTrace: "Symptoms are consistent across the candidate issues.",
	}, nil
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(context.Context, string) (*retrieval.Result, error) {
	return nil, errors.New("retriever should not run in this scenario")
}

type stubPlanner struct{}

func (stubPlanner) Generate(_ context.Context, _ *models.ReasonerOutput, passages []models.RetrievedPassage, _ *models.VectorRetrievalMetrics) (*models.FixPlan, error) {
	return &models.FixPlan{
		Summary:     "Clear the clog with a flange plunger, then confirm the bowl drains freely.",
		DangerLevel: models.DangerLow,
		Steps: []models.FixStep{
			{StepNumber: 1, Title: "Plunge the drain", Instruction: "Seal a flange plunger over the outlet and plunge firmly a dozen times.", ExpectedOutcome: "Water level drops"},
		},
		Metrics:              models.StatisticalMetrics{Confidence: 0.4, ReasoningSteps: 2},
		FallbackToVisionOnly: len(passages) == 0,
	}, nil
}

// --- wiring ---

func newContractServer(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.SessionConfig{
		Backend:      "memory",
		TTL:          time.Hour,
		MinInterval:  0,
		LockLease:    30 * time.Second,
		HistoryLimit: 10,
	}
	coord := session.NewCoordinator(session.NewMemoryStore(), cfg)
	guides := guide.NewService(coord)
	frames := triage.New(coord, &stubExtractor{obs: testObservation()}, guides)
	solver := solution.New(coord, stubRefiner{}, stubRetriever{}, stubPlanner{})
	m := metrics.New()

	return api.NewRouter(api.Dependencies{
		AnalyzeFrame:    NewAnalyzeFrameHandler(frames, m),
		LatestAnalysis:  NewLatestObservationHandler(coord),
		AnalysisHistory: NewHistoryHandler(coord),
		RunSolution:     NewRunSolutionHandler(solver, m),
		LatestSolution:  NewLatestSolutionHandler(coord),
		StartGuide:      NewStartGuideHandler(guides),
		AdvanceGuide:    NewAdvanceGuideHandler(guides),
		GuideState:      NewGuideStateHandler(guides),
		EndGuide:        NewEndGuideHandler(guides),
		DebugSession:    NewDebugSessionHandler(coord),
		MetricsHandler:  m.Handler(),
	})
}

func encodePNG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x * y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func do(t *testing.T, srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// --- scenario ---

func TestContract_SessionLifecycle(t *testing.T) {
	srv := newContractServer(t)

	// Frame upload produces an observation.
	rec := do(t, srv, frameRequest(t, "kitchen-1", encodePNG(t, 10)))
	data := parseData(t, rec, http.StatusOK)
	if data["fixture"] != "toilet" {
		t.Fatalf("frame response: %v", data)
	}

	// The same bytes again: benign duplicate skip.
	rec = do(t, srv, frameRequest(t, "kitchen-1", encodePNG(t, 10)))
	data = parseData(t, rec, http.StatusOK)
	if data["skipped"] != true || data["reason"] != "duplicate" {
		t.Fatalf("duplicate response: %v", data)
	}

	// A different frame is accepted again.
	rec = do(t, srv, frameRequest(t, "kitchen-1", encodePNG(t, 99)))
	parseData(t, rec, http.StatusOK)

	// Latest returns the stored record.
	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/kitchen-1/latest", nil))
	data = parseData(t, rec, http.StatusOK)
	if data["valid"] != true {
		t.Fatalf("latest: %v", data)
	}

	// History lists both accepted analyses.
	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/kitchen-1/history", nil))
	var listing struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	decodeBody(t, rec, &listing)
	if listing.Meta.Count != 2 || len(listing.Data) != 2 {
		t.Fatalf("history: %+v", listing)
	}

	// Solution pipeline runs against the latest observation.
	rec = do(t, srv, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/kitchen-1/solution", nil))
	data = parseData(t, rec, http.StatusOK)
	plan := data["fix_plan"].(map[string]any)
	if plan["fallback_to_vision_only"] != true {
		t.Fatalf("expected the vision-only fallback plan, got %v", plan)
	}

	// The run is persisted.
	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/kitchen-1/solution/latest", nil))
	data = parseData(t, rec, http.StatusOK)
	if data["session_id"] != "kitchen-1" {
		t.Fatalf("solution latest: %v", data)
	}

	// Guide lifecycle: start, advance, read, end.
	rec = do(t, srv, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/kitchen-1/guide", nil))
	data = parseData(t, rec, http.StatusCreated)
	state := data["state"].(map[string]any)
	if state["current_step"] != float64(1) {
		t.Fatalf("guide start: %v", state)
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/kitchen-1/guide/advance",
		bytes.NewReader([]byte(`{"outcome":"done"}`))))
	data = parseData(t, rec, http.StatusOK)
	state = data["state"].(map[string]any)
	if state["current_step"] != float64(2) {
		t.Fatalf("guide advance: %v", state)
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/kitchen-1/guide", nil))
	parseData(t, rec, http.StatusOK)

	rec = do(t, srv, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/kitchen-1/guide", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("guide delete: %d", rec.Code)
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/kitchen-1/guide", nil))
	status, code := parseErr(t, rec)
	if status != http.StatusNotFound || code != "NO_GUIDE" {
		t.Fatalf("guide after delete: %d %s", status, code)
	}

	// Debug snapshot reflects the session.
	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/debug/session/kitchen-1", nil))
	data = parseData(t, rec, http.StatusOK)
	if data["has_latest"] != true || data["has_solution"] != true || data["has_guide"] != false {
		t.Fatalf("debug snapshot: %v", data)
	}
}

func TestContract_SolutionBeforeAnyFrame(t *testing.T) {
	srv := newContractServer(t)

	rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/empty-1/solution", nil))
	status, code := parseErr(t, rec)
	if status != http.StatusNotFound || code != "NO_OBSERVATION" {
		t.Fatalf("got %d %s, want 404 NO_OBSERVATION", status, code)
	}
}

func TestContract_BadImageRejected(t *testing.T) {
	srv := newContractServer(t)

	rec := do(t, srv, frameRequest(t, "kitchen-2", []byte("definitely not an image")))
	status, code := parseErr(t, rec)
	if status != http.StatusBadRequest || code != "BAD_IMAGE" {
		t.Fatalf("got %d %s, want 400 BAD_IMAGE", status, code)
	}
}
