package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fixsight/internal/config"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		Backend:      "memory",
		TTL:          time.Hour,
		MinInterval:  time.Second,
		LockLease:    30 * time.Second,
		HistoryLimit: 10,
	}
}

// withSession attaches a chi route context so chi.URLParam resolves
// sessionID outside a mounted router.
func withSession(r *http.Request, sessionID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", sessionID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) map[string]any {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Data
}

func parseErr(t *testing.T, rec *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details any    `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, env.Error.Code
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func errDetails(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Error struct {
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Error.Details
}

func testObservation() *models.Observation {
	return &models.Observation{
		Category: models.CategoryToilet,
		ProspectedIssues: []models.ProspectedIssue{
			{Rank: 1, IssueName: "Clogged drain", SuspectedCause: "Foreign object", Confidence: 0.85, Category: models.CategoryToilet},
			{Rank: 2, IssueName: "Faulty flapper", SuspectedCause: "Worn seal", Confidence: 0.55, Category: models.CategoryToilet},
			{Rank: 3, IssueName: "Blocked vent", SuspectedCause: "Debris", Confidence: 0.30, Category: models.CategoryToilet},
		},
		OverallDangerLevel: models.DangerLow,
		Location:           "bathroom",
		Fixture:            "toilet",
		ObservedSymptoms:   []string{"water rising in bowl"},
	}
}
