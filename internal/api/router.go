package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/kiranshivaraju/fixsight/internal/api/middleware"
	"github.com/kiranshivaraju/fixsight/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler   http.HandlerFunc
	MetricsHandler  http.Handler
	AnalyzeFrame    http.HandlerFunc
	LatestAnalysis  http.HandlerFunc
	AnalysisHistory http.HandlerFunc
	RunSolution     http.HandlerFunc
	LatestSolution  http.HandlerFunc
	StartGuide      http.HandlerFunc
	AdvanceGuide    http.HandlerFunc
	GuideState      http.HandlerFunc
	EndGuide        http.HandlerFunc
	DebugSession    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Operational endpoints stay outside the rate limit.
	r.Get("/healthz", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Route("/api/v1/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/frames", orNotImplemented(deps.AnalyzeFrame))
			r.Get("/latest", orNotImplemented(deps.LatestAnalysis))
			r.Get("/history", orNotImplemented(deps.AnalysisHistory))

			r.Post("/solution", orNotImplemented(deps.RunSolution))
			r.Get("/solution/latest", orNotImplemented(deps.LatestSolution))

			r.Post("/guide", orNotImplemented(deps.StartGuide))
			r.Post("/guide/advance", orNotImplemented(deps.AdvanceGuide))
			r.Get("/guide", orNotImplemented(deps.GuideState))
			r.Delete("/guide", orNotImplemented(deps.EndGuide))
		})

		r.Get("/api/v1/debug/session/{sessionID}", orNotImplemented(deps.DebugSession))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
