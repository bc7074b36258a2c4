package server

import (
	"log/slog"
	"net/http"

	"github.com/restylehq/restyle-api/internal/auth"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// AssetDir, when non-empty, is served under /assets/ for local storage
	// deployments.
	AssetDir string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing. The webhook and
// status routes are reachable without caller identity; everything else is
// behind the auth middleware.
func NewRouter(h *Handlers, authenticator auth.Authenticator, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	authed := AuthMiddleware(authenticator, logger)

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("POST /uploads", authed(http.HandlerFunc(h.Upload)))
	mux.Handle("POST /jobs", authed(http.HandlerFunc(h.Submit)))
	mux.HandleFunc("POST /jobs/webhook", h.Webhook)
	mux.HandleFunc("POST /jobs/status", h.Status)
	mux.Handle("GET /jobs", authed(http.HandlerFunc(h.List)))
	mux.Handle("GET /jobs/events", authed(http.HandlerFunc(h.Events)))
	mux.Handle("DELETE /jobs/{id}", authed(http.HandlerFunc(h.Delete)))

	if cfg.AssetDir != "" {
		mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.AssetDir))))
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
