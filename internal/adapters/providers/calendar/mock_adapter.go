package calendar

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz"

// MockAdapter hands out deterministic meeting links for local development.
type MockAdapter struct {
	mu      sync.Mutex
	counter int
	events  map[string]entities.MeetingEvent
}

// NewMockAdapter creates a mock calendar provider.
func NewMockAdapter() providers.CalendarProvider {
	return &MockAdapter{events: make(map[string]entities.MeetingEvent)}
}

// CreateEvent returns a link shaped like a real meeting code (xxx-xxxx-xxx).
func (m *MockAdapter) CreateEvent(ctx context.Context, client *http.Client, req entities.MeetingRequest) (*entities.MeetingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	code := mockCode(m.counter)
	event := entities.MeetingEvent{
		EncounterID: req.EncounterID,
		EventID:     fmt.Sprintf("mock-%d", m.counter),
		URL:         entities.MeetBaseURL + "/" + code,
		Status:      entities.MeetingEventStatusLinked,
	}
	m.events[event.EventID] = event
	return &event, nil
}

// DeleteEvent forgets the event.
func (m *MockAdapter) DeleteEvent(ctx context.Context, client *http.Client, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, eventID)
	return nil
}

func mockCode(n int) string {
	letters := make([]byte, 10)
	for i := len(letters) - 1; i >= 0; i-- {
		letters[i] = codeAlphabet[n%len(codeAlphabet)]
		n /= len(codeAlphabet)
	}
	s := string(letters)
	return s[0:3] + "-" + s[3:7] + "-" + s[7:10]
}
