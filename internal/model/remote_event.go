package model

import (
	"encoding/json"
	"time"
)

// Calendar is a calendar as listed by the remote service.
type Calendar struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary"`
	TimeZone string `json:"time_zone,omitempty"`
}

// EventDateTime is the remote start/end representation. All-day occurrences
// carry only Date (YYYY-MM-DD); timed occurrences carry DateTime (RFC3339).
type EventDateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsDateOnly reports whether the value has no time-of-day component.
func (d *EventDateTime) IsDateOnly() bool {
	return d != nil && d.DateTime == "" && d.Date != ""
}

// RemoteEvent is an event payload as exchanged with the remote calendar service.
type RemoteEvent struct {
	ID          string          `json:"id"`
	Status      EventStatus     `json:"status"`
	Summary     string          `json:"summary"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	Start       *EventDateTime  `json:"start,omitempty"`
	End         *EventDateTime  `json:"end,omitempty"`
	Updated     string          `json:"updated,omitempty"`
	Attendees   json.RawMessage `json:"attendees,omitempty"`
	Reminders   json.RawMessage `json:"reminders,omitempty"`
	Recurrence  json.RawMessage `json:"recurrence,omitempty"`
}

// ListEventsOptions controls one page request against the remote event listing.
// SyncToken and the time window are mutually exclusive on the remote side.
type ListEventsOptions struct {
	SyncToken   string
	PageToken   string
	TimeMin     *time.Time
	TimeMax     *time.Time
	MaxResults  int64
	ShowDeleted bool
}

// EventPage is one page of a remote event listing. NextSyncToken is only set
// on the last page.
type EventPage struct {
	Items         []RemoteEvent
	NextPageToken string
	NextSyncToken string
}
