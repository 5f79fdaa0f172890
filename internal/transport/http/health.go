package http

import (
	"context"
	"net/http"
	"time"
)

// HealthProbe reports one dependency's reachability.
type HealthProbe func(ctx context.Context) error

const healthProbeTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler aggregates dependency probes into one liveness answer.
func HealthHandler(probes map[string]HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		checks := make(map[string]string, len(probes))
		healthy := true
		for name, probe := range probes {
			if err := probe(ctx); err != nil {
				checks[name] = "down"
				healthy = false
				continue
			}
			checks[name] = "up"
		}

		status := http.StatusOK
		resp := healthResponse{Status: "ok", Checks: checks}
		if !healthy {
			status = http.StatusServiceUnavailable
			resp.Status = "degraded"
		}
		writeJSON(w, status, resp)
	}
}
