package entities

import (
	"time"
)

// ResourceTypeEncounter is the FHIR resource type handled by the service
const ResourceTypeEncounter = "Encounter"

// Encounter is the subset of a FHIR Encounter the service reads and writes.
// Clinical fields outside this shape are dropped on decode.
type Encounter struct {
	ResourceType string  `json:"resourceType"`
	ID           string  `json:"id,omitempty"`
	Meta         *Meta   `json:"meta,omitempty"`
	Status       string  `json:"status,omitempty"`
	Period       *Period `json:"period,omitempty"`
}

// Meta carries resource metadata, including the tag list used for meeting links
type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Tag         []Coding `json:"tag,omitempty"`
}

// Coding is a FHIR system/code pair
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Period is a FHIR period; start and end keep their wire format
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// DefaultMeetingLength is used when an encounter period has no usable end
const DefaultMeetingLength = 30 * time.Minute

var fhirDateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Simplify reduces an encounter to the fields the service writes back:
// resource type, status, period and id.
func Simplify(e *Encounter) *Encounter {
	if e == nil {
		return nil
	}
	out := &Encounter{
		ResourceType: ResourceTypeEncounter,
		ID:           e.ID,
		Status:       e.Status,
	}
	if e.Period != nil {
		p := *e.Period
		out.Period = &p
	}
	return out
}

// Clone returns a copy that shares no mutable state with e
func (e *Encounter) Clone() *Encounter {
	if e == nil {
		return nil
	}
	out := *e
	if e.Meta != nil {
		m := *e.Meta
		m.Tag = append([]Coding(nil), e.Meta.Tag...)
		out.Meta = &m
	}
	if e.Period != nil {
		p := *e.Period
		out.Period = &p
	}
	return &out
}

// VersionID returns meta.versionId, or "" when the encounter has none
func (e *Encounter) VersionID() string {
	if e == nil || e.Meta == nil {
		return ""
	}
	return e.Meta.VersionID
}

// WithVersionID returns a copy of e carrying versionID in its meta
func (e *Encounter) WithVersionID(versionID string) *Encounter {
	out := e.Clone()
	if versionID == "" {
		return out
	}
	if out.Meta == nil {
		out.Meta = &Meta{}
	}
	out.Meta.VersionID = versionID
	return out
}

// Bounds returns the meeting window for the encounter. A missing or
// unparsable start falls back to now; a missing end to start plus length.
func (p *Period) Bounds(now time.Time, length time.Duration) (time.Time, time.Time) {
	start, end := now, time.Time{}
	if p != nil {
		if t, ok := parseFHIRDateTime(p.Start); ok {
			start = t
		}
		if t, ok := parseFHIRDateTime(p.End); ok {
			end = t
		}
	}
	if end.IsZero() || !end.After(start) {
		end = start.Add(length)
	}
	return start, end
}

func parseFHIRDateTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range fhirDateTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
