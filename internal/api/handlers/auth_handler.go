package handlers

import (
	"net/http"
)

// SessionManager runs the sign-in flow against the session cookie
type SessionManager interface {
	Authenticate(w http.ResponseWriter, r *http.Request) error
	Logout(w http.ResponseWriter, r *http.Request) error
}

// AuthHandler handles sign-in and sign-out
type AuthHandler struct {
	sessions SessionManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Authenticate handles GET /authenticate
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Authenticate(w, r); err != nil {
		respondWithAppError(w, r, err)
	}
}

// Logout handles GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		respondWithAppError(w, r, err)
	}
}
