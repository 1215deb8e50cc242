package providers

import (
	"context"
	"net/http"

	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
)

// CalendarProvider creates video-meeting calendar events on behalf of a signed-in user.
// client is an HTTP client already authorized for the user's calendar.
type CalendarProvider interface {
	// CreateEvent creates an event with a video meeting attached. Single attempt.
	CreateEvent(ctx context.Context, client *http.Client, req entities.MeetingRequest) (*entities.MeetingEvent, error)

	// DeleteEvent removes an event created by CreateEvent
	DeleteEvent(ctx context.Context, client *http.Client, eventID string) error
}

// CredentialSource yields an HTTP client authorized against the calendar API
type CredentialSource func(ctx context.Context) (*http.Client, error)
