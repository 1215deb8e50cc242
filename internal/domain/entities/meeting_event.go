package entities

import (
	"time"
)

// MeetingEventStatus tracks whether a calendar event ended up linked to its encounter
type MeetingEventStatus string

const (
	MeetingEventStatusLinked    MeetingEventStatus = "linked"
	MeetingEventStatusOrphaned  MeetingEventStatus = "orphaned"
	MeetingEventStatusCancelled MeetingEventStatus = "cancelled"
)

// MeetingRequest describes the calendar event to create for an encounter
type MeetingRequest struct {
	EncounterID string
	Start       time.Time
	End         time.Time
}

// MeetingEvent is a calendar event created for an encounter
type MeetingEvent struct {
	ID          string             `json:"id" db:"id"`
	EncounterID string             `json:"encounter_id" db:"encounter_id"`
	EventID     string             `json:"event_id" db:"event_id"`
	URL         string             `json:"url" db:"url"`
	Status      MeetingEventStatus `json:"status" db:"status"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}
