package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	healthResponse   = `{"status":"ok"}`
	readinessTimeout = 2 * time.Second
)

// ReadinessCheck probes one backing store. Name is reported in the /readyz body.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// healthHandler reports process liveness. It never touches dependencies.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, healthResponse)
}

type readinessBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// readinessHandler runs every check and answers 503 if any fails.
// Failure details stay in the log; the body only names the failing store.
func readinessHandler(checks []ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		body := readinessBody{Status: "ok"}
		code := http.StatusOK
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			if body.Checks == nil {
				body.Checks = make(map[string]string, len(checks))
			}
			if err := c.Check(ctx); err != nil {
				body.Checks[c.Name] = "unavailable"
				body.Status = "unavailable"
				code = http.StatusServiceUnavailable
				logger.WarnContext(ctx, "readiness check failed",
					"check", c.Name, "error", err, "request_id", RequestIDFromContext(r.Context()))
				continue
			}
			body.Checks[c.Name] = "ok"
		}

		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			return
		}
		WriteJSON(w, code, body)
	}
}
