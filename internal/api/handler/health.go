package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/fixsight/internal/api/response"
)

// Pinger is anything whose liveness the health endpoint reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /healthz. Each
// named dependency is pinged; any failure degrades the report to 503.
func NewHealthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := make(map[string]string, len(checks))
		healthy := true
		for name, p := range checks {
			if err := p.Ping(r.Context()); err != nil {
				report[name] = err.Error()
				healthy = false
				continue
			}
			report[name] = "ok"
		}

		status := "ok"
		if !healthy {
			status = "degraded"
		}

		body := map[string]any{"status": status, "checks": report}
		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "UNHEALTHY",
				"One or more dependencies are failing", body)
			return
		}
		response.JSON(w, body)
	}
}
