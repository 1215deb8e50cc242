package entities

import (
	"strings"
)

// MeetBaseURL is both the meeting URL prefix and the tag system that marks a
// meeting link on an encounter.
const MeetBaseURL = "https://meet.google.com"

// MeetingURL returns the meeting URL stored on the encounter, or "" when it
// has none. The first tag in the meeting system wins.
func MeetingURL(e *Encounter) string {
	if e == nil || e.Meta == nil {
		return ""
	}
	for _, tag := range e.Meta.Tag {
		if tag.System == MeetBaseURL {
			return MeetBaseURL + "/" + tag.Code
		}
	}
	return ""
}

// MeetingCode derives the tag code from a meeting URL: the base URL and every
// slash are removed.
func MeetingCode(url string) string {
	code := strings.Replace(url, MeetBaseURL, "", 1)
	return strings.ReplaceAll(code, "/", "")
}

// WithMeetingURL returns a copy of e with a meeting tag for url appended.
// e, its meta and its tag slice are left untouched.
func WithMeetingURL(e *Encounter, url string) *Encounter {
	out := e.Clone()
	if out == nil {
		out = &Encounter{ResourceType: ResourceTypeEncounter}
	}
	if out.Meta == nil {
		out.Meta = &Meta{}
	}
	out.Meta.Tag = append(out.Meta.Tag, Coding{
		System: MeetBaseURL,
		Code:   MeetingCode(url),
	})
	return out
}
