package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/repositories"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
)

const meetingEventsTable = "meeting_events"

const meetingEventsSchema = `
CREATE TABLE IF NOT EXISTS meeting_events (
	id           TEXT PRIMARY KEY,
	encounter_id TEXT NOT NULL,
	event_id     TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_meeting_events_encounter ON meeting_events (encounter_id);
CREATE INDEX IF NOT EXISTS idx_meeting_events_status ON meeting_events (status, created_at DESC);
`

var meetingEventColumns = []interface{}{
	"id", "encounter_id", "event_id", "url", "status", "created_at", "updated_at",
}

// MeetingEventAdapter implements the MeetingEventRepository interface
type MeetingEventAdapter struct {
	db   *sql.DB
	goqu *goqu.Database
}

// NewMeetingEventAdapter creates a new meeting event ledger adapter
func NewMeetingEventAdapter(db *sql.DB) *MeetingEventAdapter {
	return &MeetingEventAdapter{
		db:   db,
		goqu: goqu.New("postgres", db),
	}
}

var _ repositories.MeetingEventRepository = (*MeetingEventAdapter)(nil)

// EnsureSchema creates the ledger table when missing
func (a *MeetingEventAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, meetingEventsSchema); err != nil {
		return apperrors.NewInternalError("failed to create meeting_events table", err)
	}
	return nil
}

// Record inserts a meeting event, assigning its id and timestamps when unset
func (a *MeetingEventAdapter) Record(ctx context.Context, event *entities.MeetingEvent) error {
	now := time.Now().UTC()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	record := goqu.Record{
		"id":           event.ID,
		"encounter_id": event.EncounterID,
		"event_id":     event.EventID,
		"url":          event.URL,
		"status":       string(event.Status),
		"created_at":   event.CreatedAt,
		"updated_at":   event.UpdatedAt,
	}

	query, args, err := a.goqu.Insert(meetingEventsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to record meeting event", err)
	}
	return nil
}

// ListByStatus returns events in the given status, newest first
func (a *MeetingEventAdapter) ListByStatus(ctx context.Context, status entities.MeetingEventStatus, limit int) ([]*entities.MeetingEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query, args, err := a.goqu.Select(meetingEventColumns...).
		From(meetingEventsTable).
		Where(goqu.Ex{"status": string(status)}).
		Order(goqu.I("created_at").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.query(ctx, query, args)
}

// ListByEncounter returns every event recorded for an encounter, oldest first
func (a *MeetingEventAdapter) ListByEncounter(ctx context.Context, encounterID string) ([]*entities.MeetingEvent, error) {
	query, args, err := a.goqu.Select(meetingEventColumns...).
		From(meetingEventsTable).
		Where(goqu.Ex{"encounter_id": encounterID}).
		Order(goqu.I("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.query(ctx, query, args)
}

func (a *MeetingEventAdapter) query(ctx context.Context, query string, args []interface{}) ([]*entities.MeetingEvent, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list meeting events", err)
	}
	defer rows.Close()

	var events []*entities.MeetingEvent
	for rows.Next() {
		event := &entities.MeetingEvent{}
		var status string
		if err := rows.Scan(
			&event.ID,
			&event.EncounterID,
			&event.EventID,
			&event.URL,
			&status,
			&event.CreatedAt,
			&event.UpdatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan meeting event", err)
		}
		event.Status = entities.MeetingEventStatus(status)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list meeting events", err)
	}

	return events, nil
}
