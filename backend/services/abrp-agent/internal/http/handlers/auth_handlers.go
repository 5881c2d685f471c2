package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/auth"
)

// Authenticator checks the operator password.
type Authenticator interface {
	Login(password string) (string, error)
}

// AuthHandlers serves the login endpoint.
type AuthHandlers struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewAuthHandlers returns handler struct.
func NewAuthHandlers(a Authenticator, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{auth: a, logger: logger}
}

// Login handles POST /api/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Password string `json:"password"`
	}
	type response struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}

	var req request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Password = strings.TrimSpace(req.Password)
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	token, err := h.auth.Login(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}
	writeJSON(w, http.StatusOK, response{Token: token, TokenType: "Bearer"})
}

// NewHealthHandler reports liveness.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
