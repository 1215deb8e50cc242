package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
)

// MeetingService defines the interface for meeting link operations
type MeetingService interface {
	GetMeetingURL(ctx context.Context, encounterID string) (string, error)
	GetOrCreateMeetingURL(ctx context.Context, payload *entities.Encounter, credentials providers.CredentialSource) (string, error)
}

// CredentialBinder resolves the signed-in user's calendar credentials for a request
type CredentialBinder interface {
	Credentials(w http.ResponseWriter, r *http.Request) providers.CredentialSource
}

// MeetingResponse is {"url": ...}, or {} when there is no meeting
type MeetingResponse struct {
	URL string `json:"url,omitempty"`
}

// MeetingHandler handles meeting link requests
type MeetingHandler struct {
	service     MeetingService
	credentials CredentialBinder
}

// NewMeetingHandler creates a new meeting handler
func NewMeetingHandler(service MeetingService, credentials CredentialBinder) *MeetingHandler {
	return &MeetingHandler{
		service:     service,
		credentials: credentials,
	}
}

// GetMeeting handles GET /hangouts/{encounterId}
func (h *MeetingHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	encounterID := r.PathValue("encounterId")
	if encounterID == "" {
		respondWithError(w, http.StatusBadRequest, "encounter ID is required")
		return
	}

	url, err := h.service.GetMeetingURL(r.Context(), encounterID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MeetingResponse{URL: url})
}

// CreateMeeting handles POST /hangouts. The encounter arrives as JSON in the
// "encounter" form field.
func (h *MeetingHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	raw := r.PostFormValue("encounter")
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "encounter is required")
		return
	}

	var encounter entities.Encounter
	if err := json.Unmarshal([]byte(raw), &encounter); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid encounter payload")
		return
	}

	url, err := h.service.GetOrCreateMeetingURL(r.Context(), &encounter, h.credentials.Credentials(w, r))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MeetingResponse{URL: url})
}
