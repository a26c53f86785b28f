package httpx

import (
	"log/slog"
	"net/http"
)

// DefaultAdminRole gates the admin routes.
const DefaultAdminRole = "admin"

// RouterOptions holds everything the HTTP router needs.
type RouterOptions struct {
	Sessions SessionFacade // Required
	// Metrics serves GET /metrics when set (typically promhttp.HandlerFor).
	Metrics http.Handler
	// Readiness backs GET /readyz. With no checks it always answers ok.
	Readiness         []ReadinessCheck
	AdminRole         string
	TrustForwardedFor bool
	Logger            *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	adminRole := opts.AdminRole
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}

	mux := http.NewServeMux()
	h := &SessionHandlers{
		Svc:               opts.Sessions,
		TrustForwardedFor: opts.TrustForwardedFor,
		Logger:            logger.With("component", "http"),
	}
	registerSessionRoutes(mux, h, adminRole)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	ready := readinessHandler(opts.Readiness, logger.With("component", "readiness"))
	mux.Handle("GET /readyz", ready)
	mux.Handle("HEAD /readyz", ready)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return Chain(mux, RequestID(), Recover(logger), Logging(logger))
}

func registerSessionRoutes(mux *http.ServeMux, h *SessionHandlers, adminRole string) {
	mux.HandleFunc("POST /sessions", h.Connect)
	mux.HandleFunc("GET /sessions/{id}", h.Get)
	mux.HandleFunc("DELETE /sessions/{id}", h.Disconnect)
	mux.HandleFunc("GET /sessions/{id}/roles", h.Roles)

	requireAdmin := RequireRole(h.Svc, adminRole)
	mux.Handle("DELETE /admin/subjects/{login}", requireAdmin(http.HandlerFunc(h.KillSubject)))
}
