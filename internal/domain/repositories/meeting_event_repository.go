package repositories

import (
	"context"

	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
)

// MeetingEventRepository is the ledger of calendar events created for encounters
type MeetingEventRepository interface {
	// Record inserts a meeting event
	Record(ctx context.Context, event *entities.MeetingEvent) error

	// ListByStatus returns events in the given status, newest first
	ListByStatus(ctx context.Context, status entities.MeetingEventStatus, limit int) ([]*entities.MeetingEvent, error)

	// ListByEncounter returns every event recorded for an encounter
	ListByEncounter(ctx context.Context, encounterID string) ([]*entities.MeetingEvent, error)
}
