package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const conferenceSolutionMeet = "hangoutsMeet"

// GoogleCalendarAdapter implements CalendarProvider on the Google Calendar API
type GoogleCalendarAdapter struct {
	calendarID string
	opts       []option.ClientOption
}

// NewGoogleCalendarAdapter creates a calendar provider writing to calendarID
// ("primary" for the signed-in user's own calendar). opts are applied to every
// per-request service, after the user's HTTP client.
func NewGoogleCalendarAdapter(calendarID string, opts ...option.ClientOption) providers.CalendarProvider {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleCalendarAdapter{
		calendarID: calendarID,
		opts:       opts,
	}
}

func (a *GoogleCalendarAdapter) service(ctx context.Context, client *http.Client) (*gcal.Service, error) {
	if client == nil {
		return nil, errors.New("calendar client is required")
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, a.opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// CreateEvent inserts an event with a Meet conference and returns its link
func (a *GoogleCalendarAdapter) CreateEvent(ctx context.Context, client *http.Client, req entities.MeetingRequest) (*entities.MeetingEvent, error) {
	svc, err := a.service(ctx, client)
	if err != nil {
		return nil, err
	}

	event := &gcal.Event{
		Summary:     "Telehealth visit",
		Description: fmt.Sprintf("Video visit for encounter %s", req.EncounterID),
		Start:       &gcal.EventDateTime{DateTime: req.Start.UTC().Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: req.End.UTC().Format(time.RFC3339)},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: conferenceSolutionMeet},
			},
		},
	}

	created, err := svc.Events.Insert(a.calendarID, event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, calendarError(err)
	}

	link := created.HangoutLink
	if link == "" && created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				link = ep.Uri
				break
			}
		}
	}
	if link == "" {
		return &entities.MeetingEvent{EventID: created.Id, EncounterID: req.EncounterID},
			fmt.Errorf("calendar event %s has no meeting link", created.Id)
	}

	return &entities.MeetingEvent{
		EncounterID: req.EncounterID,
		EventID:     created.Id,
		URL:         link,
		Status:      entities.MeetingEventStatusLinked,
	}, nil
}

// DeleteEvent removes an event; an already deleted event counts as success
func (a *GoogleCalendarAdapter) DeleteEvent(ctx context.Context, client *http.Client, eventID string) error {
	svc, err := a.service(ctx, client)
	if err != nil {
		return err
	}

	err = svc.Events.Delete(a.calendarID, eventID).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return calendarError(err)
	}
	return nil
}

// calendarError marks revoked or expired user grants so callers can send the
// user through sign-in again.
func calendarError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return apperrors.NewUnauthorizedError("calendar rejected the user's credentials, sign in again")
	}
	return fmt.Errorf("calendar api error: %w", err)
}
