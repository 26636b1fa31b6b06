package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
// Both ok → 200, otherwise 503 with the failing component marked "error".
func HealthHandlerFunc(db, redis Pinger, log *slog.Logger) http.HandlerFunc {
	checks := []struct {
		name   string
		pinger Pinger
	}{
		{"db", db},
		{"redis", redis},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		body := map[string]string{"status": "ok"}
		status := http.StatusOK

		for _, c := range checks {
			if err := c.pinger.Ping(ctx); err != nil {
				log.Error("health check failed", "component", c.name, "err", err)
				body[c.name] = "error"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			body[c.name] = "ok"
		}

		writeJSON(w, status, body)
	}
}
