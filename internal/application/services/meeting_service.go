package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
	"github.com/zatekoja/telehealth-meet/internal/domain/repositories"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
	"github.com/zatekoja/telehealth-meet/pkg/retry"
	"go.opentelemetry.io/otel/attribute"
)

// MeetingService links video meetings to encounters
type MeetingService struct {
	encounters   repositories.EncounterRepository
	calendar     providers.CalendarProvider
	locker       providers.EncounterLocker
	ledger       repositories.MeetingEventRepository
	metrics      *observability.Metrics
	compensation retry.Config
	now          func() time.Time
}

// NewMeetingService creates a new meeting service. ledger and metrics may be nil.
func NewMeetingService(
	encounters repositories.EncounterRepository,
	calendar providers.CalendarProvider,
	locker providers.EncounterLocker,
	ledger repositories.MeetingEventRepository,
	metrics *observability.Metrics,
) *MeetingService {
	return &MeetingService{
		encounters:   encounters,
		calendar:     calendar,
		locker:       locker,
		ledger:       ledger,
		metrics:      metrics,
		compensation: retry.CompensationConfig(),
		now:          time.Now,
	}
}

// GetMeetingURL returns the meeting URL stored on the encounter, or "" when
// the encounter has none or does not exist.
func (s *MeetingService) GetMeetingURL(ctx context.Context, encounterID string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "MeetingService.GetMeetingURL")
	defer span.End()
	span.SetAttributes(attribute.String("encounter.id", encounterID))

	enc, err := s.encounters.Read(ctx, encounterID)
	if errors.Is(err, repositories.ErrEncounterNotFound) {
		return "", nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	return entities.MeetingURL(enc), nil
}

// GetOrCreateMeetingURL returns the encounter's meeting URL, creating a
// calendar event and tagging the encounter with it when there is none yet.
// credentials is only invoked when an event has to be created.
func (s *MeetingService) GetOrCreateMeetingURL(ctx context.Context, payload *entities.Encounter, credentials providers.CredentialSource) (string, error) {
	// 1. Reduce the caller's encounter to the fields written back
	enc := entities.Simplify(payload)
	if enc == nil || enc.ID == "" {
		return "", apperrors.NewValidationError("encounter id is required")
	}

	ctx, span := observability.StartSpan(ctx, "MeetingService.GetOrCreateMeetingURL")
	defer span.End()
	span.SetAttributes(attribute.String("encounter.id", enc.ID))
	logger := observability.LoggerFromContext(ctx)

	// 2. Pick up the stored meeting tag and version
	synced, err := s.sync(ctx, enc)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}

	// 3. Existing meeting: write the encounter back, no calendar call
	if url := entities.MeetingURL(synced); url != "" {
		return s.reuse(ctx, synced, url)
	}

	// 4. Serialize creation per encounter
	unlock, err := s.locker.TryLock(ctx, providers.EncounterLockKey(enc.ID))
	if errors.Is(err, providers.ErrLockHeld) {
		observability.RecordLockContention(ctx, s.metrics)
		return "", apperrors.NewConflictError("a meeting is already being created for this encounter", err)
	}
	if err != nil {
		observability.RecordError(span, err)
		return "", apperrors.NewInternalError("failed to lock encounter", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str("encounter_id", enc.ID).Msg("Failed to release encounter lock")
		}
	}()

	// another request may have linked a meeting between the first read and the lock
	synced, err = s.sync(ctx, enc)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	if url := entities.MeetingURL(synced); url != "" {
		return s.reuse(ctx, synced, url)
	}

	client, err := credentials(ctx)
	if err != nil {
		return "", err
	}

	// 5. Create the calendar event
	start, end := synced.Period.Bounds(s.now(), entities.DefaultMeetingLength)
	event, err := s.calendar.CreateEvent(ctx, client, entities.MeetingRequest{
		EncounterID: enc.ID,
		Start:       start,
		End:         end,
	})
	if err != nil {
		logger.Debug().Err(err).Str("encounter_id", enc.ID).Msg("Provider calendar event create failed")
		observability.RecordError(span, err)
		if event != nil && event.EventID != "" {
			s.compensate(ctx, client, event)
		}
		if apperrors.IsType(err, apperrors.ErrorTypeUnauthorized) {
			return "", err
		}
		return "", apperrors.NewExternalError("failed to create calendar event", err)
	}

	// 6. Tag the encounter; undo the event if the write fails
	linked := entities.WithMeetingURL(synced, event.URL)
	if _, err := s.encounters.Update(ctx, linked); err != nil {
		logger.Error().Err(err).Str("encounter_id", enc.ID).Str("event_id", event.EventID).Msg("Failed to link calendar event to encounter")
		observability.RecordError(span, err)
		s.compensate(ctx, client, event)
		return "", err
	}

	event.Status = entities.MeetingEventStatusLinked
	s.record(ctx, event)
	observability.RecordMeetingCreated(ctx, s.metrics)
	logger.Debug().Str("encounter_id", enc.ID).Str("url", event.URL).Msg("Provider created calendar event for encounter")

	return event.URL, nil
}

func (s *MeetingService) reuse(ctx context.Context, enc *entities.Encounter, url string) (string, error) {
	if _, err := s.encounters.Update(ctx, enc); err != nil {
		return "", err
	}
	observability.RecordMeetingReused(ctx, s.metrics)
	return url, nil
}

// sync returns a copy of enc carrying the stored encounter's meeting tag and
// version id. A missing stored encounter leaves enc as is.
func (s *MeetingService) sync(ctx context.Context, enc *entities.Encounter) (*entities.Encounter, error) {
	stored, err := s.encounters.Read(ctx, enc.ID)
	if errors.Is(err, repositories.ErrEncounterNotFound) {
		return enc.Clone(), nil
	}
	if err != nil {
		return nil, err
	}

	out := enc.WithVersionID(stored.VersionID())
	if url := entities.MeetingURL(stored); url != "" {
		out = entities.WithMeetingURL(out, url)
	}
	return out, nil
}

// compensate deletes a calendar event that could not be linked and records
// the outcome. It runs detached from the request's cancellation.
func (s *MeetingService) compensate(ctx context.Context, client *http.Client, event *entities.MeetingEvent) {
	ctx = context.WithoutCancel(ctx)
	logger := observability.LoggerFromContext(ctx)

	cfg := s.compensation
	cfg.OnRetry = func(attempt int, err error, nextDelay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Str("event_id", event.EventID).Msg("Calendar event delete failed, retrying")
	}
	// a revoked grant stays revoked
	cfg.Retryable = func(err error) bool {
		return !apperrors.IsType(err, apperrors.ErrorTypeUnauthorized)
	}

	err := retry.Do(ctx, cfg, "calendar event delete", func(ctx context.Context) error {
		return s.calendar.DeleteEvent(ctx, client, event.EventID)
	})
	if err != nil {
		event.Status = entities.MeetingEventStatusOrphaned
		observability.RecordOrphanedEvent(ctx, s.metrics, event.EncounterID)
		logger.Error().Err(err).Str("encounter_id", event.EncounterID).Str("event_id", event.EventID).Msg("Calendar event orphaned")
	} else {
		event.Status = entities.MeetingEventStatusCancelled
	}
	s.record(ctx, event)
}

func (s *MeetingService) record(ctx context.Context, event *entities.MeetingEvent) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Record(ctx, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("event_id", event.EventID).Str("status", string(event.Status)).Msg("Failed to record meeting event")
	}
}
