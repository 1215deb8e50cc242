package services_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/telehealth-meet/internal/adapters/lock"
	"github.com/zatekoja/telehealth-meet/internal/application/services"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
	"github.com/zatekoja/telehealth-meet/internal/domain/repositories"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
)

// Mocks

type MockEncounterRepository struct {
	mock.Mock
}

func (m *MockEncounterRepository) Read(ctx context.Context, id string) (*entities.Encounter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Encounter), args.Error(1)
}

func (m *MockEncounterRepository) Create(ctx context.Context, enc *entities.Encounter) (*entities.Encounter, error) {
	args := m.Called(ctx, enc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Encounter), args.Error(1)
}

func (m *MockEncounterRepository) Update(ctx context.Context, enc *entities.Encounter) (*entities.Encounter, error) {
	args := m.Called(ctx, enc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Encounter), args.Error(1)
}

type MockCalendarProvider struct {
	mock.Mock
}

func (m *MockCalendarProvider) CreateEvent(ctx context.Context, client *http.Client, req entities.MeetingRequest) (*entities.MeetingEvent, error) {
	args := m.Called(ctx, client, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.MeetingEvent), args.Error(1)
}

func (m *MockCalendarProvider) DeleteEvent(ctx context.Context, client *http.Client, eventID string) error {
	args := m.Called(ctx, client, eventID)
	return args.Error(0)
}

type MockMeetingEventRepository struct {
	mock.Mock
}

func (m *MockMeetingEventRepository) Record(ctx context.Context, event *entities.MeetingEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockMeetingEventRepository) ListByStatus(ctx context.Context, status entities.MeetingEventStatus, limit int) ([]*entities.MeetingEvent, error) {
	return nil, nil
}

func (m *MockMeetingEventRepository) ListByEncounter(ctx context.Context, encounterID string) ([]*entities.MeetingEvent, error) {
	return nil, nil
}

type heldLocker struct{}

func (heldLocker) TryLock(ctx context.Context, key string) (providers.Unlock, error) {
	return nil, providers.ErrLockHeld
}

// Helpers

type fixture struct {
	repo     *MockEncounterRepository
	calendar *MockCalendarProvider
	ledger   *MockMeetingEventRepository
	service  *services.MeetingService
	client   *http.Client
	credsHit int
}

func newFixture(locker providers.EncounterLocker) *fixture {
	f := &fixture{
		repo:     new(MockEncounterRepository),
		calendar: new(MockCalendarProvider),
		ledger:   new(MockMeetingEventRepository),
		client:   &http.Client{},
	}
	if locker == nil {
		locker = lock.NewMemoryLocker(time.Minute)
	}
	f.service = services.NewMeetingService(f.repo, f.calendar, locker, f.ledger, nil)
	return f
}

func (f *fixture) credentials(ctx context.Context) (*http.Client, error) {
	f.credsHit++
	return f.client, nil
}

func tagged(id, code, version string) *entities.Encounter {
	return &entities.Encounter{
		ResourceType: "Encounter",
		ID:           id,
		Status:       "planned",
		Meta: &entities.Meta{
			VersionID: version,
			Tag:       []entities.Coding{{System: "https://meet.google.com", Code: code}},
		},
	}
}

func hasMeeting(url, version string) interface{} {
	return mock.MatchedBy(func(e *entities.Encounter) bool {
		return entities.MeetingURL(e) == url && e.VersionID() == version
	})
}

func withStatus(status entities.MeetingEventStatus) interface{} {
	return mock.MatchedBy(func(e *entities.MeetingEvent) bool {
		return e.Status == status
	})
}

// Tests

func TestMeetingService_GetMeetingURL(t *testing.T) {
	t.Run("returns stored meeting link", func(t *testing.T) {
		f := newFixture(nil)
		f.repo.On("Read", mock.Anything, "enc-1").Return(tagged("enc-1", "abc-defg", "1"), nil)

		url, err := f.service.GetMeetingURL(context.Background(), "enc-1")

		require.NoError(t, err)
		assert.Equal(t, "https://meet.google.com/abc-defg", url)
	})

	t.Run("no meeting on untagged encounter", func(t *testing.T) {
		f := newFixture(nil)
		f.repo.On("Read", mock.Anything, "enc-1").Return(&entities.Encounter{ID: "enc-1"}, nil)

		url, err := f.service.GetMeetingURL(context.Background(), "enc-1")

		require.NoError(t, err)
		assert.Empty(t, url)
	})

	t.Run("missing encounter is no meeting", func(t *testing.T) {
		f := newFixture(nil)
		f.repo.On("Read", mock.Anything, "missing").Return(nil, repositories.ErrEncounterNotFound)

		url, err := f.service.GetMeetingURL(context.Background(), "missing")

		require.NoError(t, err)
		assert.Empty(t, url)
	})

	t.Run("propagates upstream failures", func(t *testing.T) {
		f := newFixture(nil)
		f.repo.On("Read", mock.Anything, "enc-1").Return(nil, apperrors.NewExternalError("failed to read encounter", errors.New("boom")))

		_, err := f.service.GetMeetingURL(context.Background(), "enc-1")

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	})
}

func TestMeetingService_GetOrCreateMeetingURL_ExistingLink(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-1").Return(tagged("enc-1", "abc-defg", "3"), nil)
	f.repo.On("Update", mock.Anything, hasMeeting("https://meet.google.com/abc-defg", "3")).Return(tagged("enc-1", "abc-defg", "4"), nil).Once()

	payload := &entities.Encounter{ResourceType: "Encounter", ID: "enc-1", Status: "in-progress"}
	url, err := f.service.GetOrCreateMeetingURL(context.Background(), payload, f.credentials)

	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/abc-defg", url)
	assert.Zero(t, f.credsHit)
	f.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertExpectations(t)

	// the written encounter is the simplified payload plus the stored tag
	written := f.repo.Calls[len(f.repo.Calls)-1].Arguments.Get(1).(*entities.Encounter)
	assert.Equal(t, "in-progress", written.Status)
	assert.Len(t, written.Meta.Tag, 1)
}

func TestMeetingService_GetOrCreateMeetingURL_CreatesMeeting(t *testing.T) {
	f := newFixture(nil)
	stored := &entities.Encounter{ResourceType: "Encounter", ID: "enc-2", Meta: &entities.Meta{VersionID: "5"}}
	f.repo.On("Read", mock.Anything, "enc-2").Return(stored, nil)
	f.calendar.On("CreateEvent", mock.Anything, f.client, mock.MatchedBy(func(req entities.MeetingRequest) bool {
		return req.EncounterID == "enc-2" &&
			req.Start.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) &&
			req.End.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC))
	})).Return(&entities.MeetingEvent{EncounterID: "enc-2", EventID: "evt-1", URL: "https://meet.google.com/xyz-1234"}, nil).Once()
	f.repo.On("Update", mock.Anything, hasMeeting("https://meet.google.com/xyz-1234", "5")).Return(tagged("enc-2", "xyz-1234", "6"), nil).Once()
	f.ledger.On("Record", mock.Anything, withStatus(entities.MeetingEventStatusLinked)).Return(nil).Once()

	payload := &entities.Encounter{
		ResourceType: "Encounter",
		ID:           "enc-2",
		Status:       "planned",
		Period:       &entities.Period{Start: "2024-05-01T10:00:00Z"},
		Meta:         &entities.Meta{Tag: []entities.Coding{{System: "urn:client", Code: "dropped"}}},
	}
	url, err := f.service.GetOrCreateMeetingURL(context.Background(), payload, f.credentials)

	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/xyz-1234", url)
	assert.Equal(t, 1, f.credsHit)
	f.calendar.AssertExpectations(t)
	f.repo.AssertExpectations(t)
	f.ledger.AssertExpectations(t)

	written := f.repo.Calls[len(f.repo.Calls)-1].Arguments.Get(1).(*entities.Encounter)
	assert.Equal(t, []entities.Coding{{System: "https://meet.google.com", Code: "xyz-1234"}}, written.Meta.Tag)
	// the caller's payload is untouched
	assert.Equal(t, "dropped", payload.Meta.Tag[0].Code)
}

func TestMeetingService_GetOrCreateMeetingURL_NewEncounter(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-9").Return(nil, repositories.ErrEncounterNotFound)
	f.calendar.On("CreateEvent", mock.Anything, f.client, mock.Anything).
		Return(&entities.MeetingEvent{EncounterID: "enc-9", EventID: "evt-9", URL: "https://meet.google.com/new-code"}, nil).Once()
	f.repo.On("Update", mock.Anything, hasMeeting("https://meet.google.com/new-code", "")).Return(tagged("enc-9", "new-code", "1"), nil).Once()
	f.ledger.On("Record", mock.Anything, mock.Anything).Return(nil)

	url, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-9"}, f.credentials)

	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/new-code", url)
	f.repo.AssertNumberOfCalls(t, "Read", 2)
}

func TestMeetingService_GetOrCreateMeetingURL_RequiresID(t *testing.T) {
	f := newFixture(nil)

	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{Status: "planned"}, f.credentials)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = f.service.GetOrCreateMeetingURL(context.Background(), nil, f.credentials)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	f.repo.AssertNotCalled(t, "Read", mock.Anything, mock.Anything)
}

func TestMeetingService_GetOrCreateMeetingURL_LockHeld(t *testing.T) {
	f := newFixture(heldLocker{})
	f.repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)

	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, f.credentials)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Zero(t, f.credsHit)
	f.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestMeetingService_GetOrCreateMeetingURL_LinkedWhileLocking(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-2").Return(&entities.Encounter{ID: "enc-2"}, nil).Once()
	f.repo.On("Read", mock.Anything, "enc-2").Return(tagged("enc-2", "raced-in", "2"), nil).Once()
	f.repo.On("Update", mock.Anything, hasMeeting("https://meet.google.com/raced-in", "2")).Return(tagged("enc-2", "raced-in", "3"), nil).Once()

	url, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, f.credentials)

	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/raced-in", url)
	assert.Zero(t, f.credsHit)
	f.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestMeetingService_GetOrCreateMeetingURL_Unauthorized(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)

	creds := func(ctx context.Context) (*http.Client, error) {
		return nil, apperrors.NewUnauthorizedError("not signed in to calendar")
	}
	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, creds)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))
	f.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestMeetingService_GetOrCreateMeetingURL_CalendarFailure(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)
	f.calendar.On("CreateEvent", mock.Anything, f.client, mock.Anything).Return(nil, errors.New("quota exceeded"))

	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, f.credentials)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "quota exceeded")
	f.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.calendar.AssertNotCalled(t, "DeleteEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestMeetingService_GetOrCreateMeetingURL_EventWithoutLinkIsDeleted(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)
	f.calendar.On("CreateEvent", mock.Anything, f.client, mock.Anything).
		Return(&entities.MeetingEvent{EncounterID: "enc-2", EventID: "evt-4"}, errors.New("calendar event evt-4 has no meeting link"))
	f.calendar.On("DeleteEvent", mock.Anything, f.client, "evt-4").Return(nil).Once()
	f.ledger.On("Record", mock.Anything, withStatus(entities.MeetingEventStatusCancelled)).Return(nil).Once()

	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, f.credentials)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	f.calendar.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestMeetingService_GetOrCreateMeetingURL_UpdateFailureCompensates(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)
	f.calendar.On("CreateEvent", mock.Anything, f.client, mock.Anything).
		Return(&entities.MeetingEvent{EncounterID: "enc-2", EventID: "evt-1", URL: "https://meet.google.com/xyz-1234"}, nil)
	f.repo.On("Update", mock.Anything, mock.Anything).Return(nil, apperrors.NewExternalError("failed to update encounter", errors.New("store unavailable")))
	f.calendar.On("DeleteEvent", mock.Anything, f.client, "evt-1").Return(nil).Once()
	f.ledger.On("Record", mock.Anything, withStatus(entities.MeetingEventStatusCancelled)).Return(nil).Once()

	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, f.credentials)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	f.calendar.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestMeetingService_GetOrCreateMeetingURL_OrphanedEvent(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)
	f.calendar.On("CreateEvent", mock.Anything, f.client, mock.Anything).
		Return(&entities.MeetingEvent{EncounterID: "enc-2", EventID: "evt-1", URL: "https://meet.google.com/xyz-1234"}, nil)
	f.repo.On("Update", mock.Anything, mock.Anything).Return(nil, apperrors.NewConflictError("encounter was modified concurrently", nil))
	f.calendar.On("DeleteEvent", mock.Anything, f.client, "evt-1").Return(errors.New("calendar unavailable"))
	f.ledger.On("Record", mock.Anything, withStatus(entities.MeetingEventStatusOrphaned)).Return(nil).Once()

	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, f.credentials)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	f.calendar.AssertNumberOfCalls(t, "DeleteEvent", 3)
	f.ledger.AssertExpectations(t)
}

func TestMeetingService_GetOrCreateMeetingURL_RevokedGrantOrphansWithoutRetry(t *testing.T) {
	f := newFixture(nil)
	f.repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)
	f.calendar.On("CreateEvent", mock.Anything, f.client, mock.Anything).
		Return(&entities.MeetingEvent{EncounterID: "enc-2", EventID: "evt-1", URL: "https://meet.google.com/xyz-1234"}, nil)
	f.repo.On("Update", mock.Anything, mock.Anything).Return(nil, apperrors.NewConflictError("encounter was modified concurrently", nil))
	f.calendar.On("DeleteEvent", mock.Anything, f.client, "evt-1").
		Return(apperrors.NewUnauthorizedError("calendar authorization expired, sign in again"))
	f.ledger.On("Record", mock.Anything, withStatus(entities.MeetingEventStatusOrphaned)).Return(nil).Once()

	_, err := f.service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, f.credentials)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	f.calendar.AssertNumberOfCalls(t, "DeleteEvent", 1)
	f.ledger.AssertExpectations(t)
}

func TestMeetingService_WithoutLedger(t *testing.T) {
	repo := new(MockEncounterRepository)
	calendar := new(MockCalendarProvider)
	service := services.NewMeetingService(repo, calendar, lock.NewMemoryLocker(time.Minute), nil, nil)

	repo.On("Read", mock.Anything, "enc-2").Return(nil, repositories.ErrEncounterNotFound)
	calendar.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).
		Return(&entities.MeetingEvent{EncounterID: "enc-2", EventID: "evt-1", URL: "https://meet.google.com/xyz-1234"}, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(tagged("enc-2", "xyz-1234", "1"), nil)

	url, err := service.GetOrCreateMeetingURL(context.Background(), &entities.Encounter{ID: "enc-2"}, func(ctx context.Context) (*http.Client, error) {
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/xyz-1234", url)
}
