package httpserver

import (
	"net/http"

	"abrplink/backend/services/abrp-agent/internal/http/handlers"
	"abrplink/backend/services/abrp-agent/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	AuthHandlers  *handlers.AuthHandlers
	AgentHandlers *handlers.AgentHandlers
	HealthHandler http.HandlerFunc
	Metrics       http.Handler
	Notifications http.HandlerFunc
}

// NewRouter wires control API routes.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))
	if deps.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, deps.Metrics))
	}
	mux.Handle("/api/login", method(http.MethodPost, http.HandlerFunc(deps.AuthHandlers.Login)))

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	a := deps.AgentHandlers
	mux.Handle("/api/telemetry", method(http.MethodGet, authenticated(a.Telemetry)))
	mux.Handle("/api/telemetry/onetime", method(http.MethodPost, authenticated(a.Onetime)))
	mux.Handle("/api/agent/send", method(http.MethodPost, authenticated(a.Send)))
	mux.Handle("/api/agent/status", method(http.MethodGet, authenticated(a.Status)))
	mux.Handle("/api/config/reset", method(http.MethodPost, authenticated(a.ResetConfig)))
	mux.Handle("/api/config/token", method(http.MethodPut, authenticated(a.SetToken)))
	mux.Handle("/api/events/{name}", method(http.MethodPost, authenticated(a.Event)))
	if deps.Notifications != nil {
		mux.Handle("/api/notifications/ws", method(http.MethodGet, authenticated(deps.Notifications)))
	}

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
