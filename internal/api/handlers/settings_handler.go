package handlers

import (
	"net/http"
)

// ClientSettings is the subset of settings exposed to the browser
type ClientSettings struct {
	FHIRClientID string `json:"fhirClientId"`
}

// SettingsHandler serves client settings
type SettingsHandler struct {
	settings ClientSettings
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(fhirClientID string) *SettingsHandler {
	return &SettingsHandler{settings: ClientSettings{FHIRClientID: fhirClientID}}
}

// GetSettings handles GET /settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.settings)
}
