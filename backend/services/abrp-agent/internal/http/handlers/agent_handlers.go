package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/models"
	"abrplink/backend/services/abrp-agent/internal/scheduler"
	"abrplink/backend/services/abrp-agent/internal/service"
)

// AgentControl is the operator surface of the agent.
type AgentControl interface {
	Info(ctx context.Context) (models.TelemetryRecord, error)
	Onetime(ctx context.Context) (models.TelemetryRecord, error)
	SetSending(ctx context.Context, enabled bool) (service.Status, error)
	Status(ctx context.Context) (service.Status, error)
	ResetConfig(ctx context.Context) error
	SetToken(ctx context.Context, token string) error
	Publish(name string) error
}

// AgentHandlers exposes operator commands.
type AgentHandlers struct {
	agent  AgentControl
	logger *zap.Logger
}

// NewAgentHandlers returns handler struct.
func NewAgentHandlers(agent AgentControl, logger *zap.Logger) *AgentHandlers {
	return &AgentHandlers{agent: agent, logger: logger}
}

// Telemetry handles GET /api/telemetry.
func (h *AgentHandlers) Telemetry(w http.ResponseWriter, r *http.Request) {
	rec, err := h.agent.Info(r.Context())
	if err != nil {
		h.fail(w, "info", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Onetime handles POST /api/telemetry/onetime.
func (h *AgentHandlers) Onetime(w http.ResponseWriter, r *http.Request) {
	rec, err := h.agent.Onetime(r.Context())
	if err != nil {
		h.fail(w, "onetime", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"sent": true, "telemetry": rec})
}

// Send handles POST /api/agent/send.
func (h *AgentHandlers) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	st, err := h.agent.SetSending(r.Context(), *req.Enabled)
	if err != nil {
		h.fail(w, "send", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Status handles GET /api/agent/status.
func (h *AgentHandlers) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.agent.Status(r.Context())
	if err != nil {
		h.fail(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ResetConfig handles POST /api/config/reset.
func (h *AgentHandlers) ResetConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.agent.ResetConfig(r.Context()); err != nil {
		h.fail(w, "reset config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetToken handles PUT /api/config/token.
func (h *AgentHandlers) SetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.agent.SetToken(r.Context(), req.Token); err != nil {
		h.fail(w, "set token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Event handles POST /api/events/{name}.
func (h *AgentHandlers) Event(w http.ResponseWriter, r *http.Request) {
	if err := h.agent.Publish(r.PathValue("name")); err != nil {
		h.fail(w, "event", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *AgentHandlers) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrTokenMissing):
		writeError(w, http.StatusConflict, "user token not set")
	case errors.Is(err, service.ErrUnknownEvent):
		writeError(w, http.StatusNotFound, "unknown event")
	case errors.Is(err, scheduler.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "agent unavailable")
	default:
		h.logger.Error("agent command failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
