package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fixsight/internal/api"
	mw "github.com/kiranshivaraju/fixsight/internal/api/middleware"
	"github.com/kiranshivaraju/fixsight/internal/metrics"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(session.NewMemoryStore(), 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UnwiredEndpointsReturn501(t *testing.T) {
	router := newTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/sessions/s1/frames"},
		{"GET", "/api/v1/sessions/s1/latest"},
		{"GET", "/api/v1/sessions/s1/history"},
		{"POST", "/api/v1/sessions/s1/solution"},
		{"GET", "/api/v1/sessions/s1/solution/latest"},
		{"POST", "/api/v1/sessions/s1/guide"},
		{"POST", "/api/v1/sessions/s1/guide/advance"},
		{"GET", "/api/v1/sessions/s1/guide"},
		{"DELETE", "/api/v1/sessions/s1/guide"},
		{"GET", "/api/v1/debug/session/s1"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotImplemented, w.Code)
			assert.Equal(t, "NOT_IMPLEMENTED", errCode(t, w))
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SessionParamReachesHandler(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		LatestAnalysis: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chi.URLParam(r, "sessionID")))
		},
	})

	req := httptest.NewRequest("GET", "/api/v1/sessions/kitchen-42/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kitchen-42", w.Body.String())
}

func TestRouter_PanicBecomesErrorEnvelope(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		RunSolution: func(http.ResponseWriter, *http.Request) {
			panic("pipeline exploded")
		},
	})

	req := httptest.NewRequest("POST", "/api/v1/sessions/s1/solution", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, w))
}

func TestRouter_RateLimitScopedToAPI(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/sessions/s1/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"), "api routes should be limited")

	req = httptest.NewRequest("GET", "/healthz", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), "healthz should not be limited")
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("OPTIONS", "/api/v1/sessions/s1/frames", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CORSConfiguredOrigin(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		CORSOrigins: []string{"https://app.example.com"},
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.CountFrame(metrics.FrameAccepted)

	router := api.NewRouter(api.Dependencies{MetricsHandler: m.Handler()})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "fixsight_frame_outcomes_total"))
}
