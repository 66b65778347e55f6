package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrEventChanged is returned by a guarded update when the stored record no
// longer has the expected Updated value.
var ErrEventChanged = errors.New("event changed since it was read")

type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusTentative EventStatus = "tentative"
	EventStatusCancelled EventStatus = "cancelled"
)

// UntitledEvent is the title given to remote events that arrive without a summary.
const UntitledEvent = "(No title)"

// LocalEvent is the locally persisted copy of a calendar event.
//
// Updated is an epoch-millisecond timestamp. Once an event has been synced it
// tracks the remote "last modified" instant; for unpushed edits it is the local
// edit time. It is the only input to conflict resolution.
type LocalEvent struct {
	ID               string          `json:"id"`
	RemoteEventID    *string         `json:"remote_event_id"`
	RemoteCalendarID string          `json:"remote_calendar_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Location         string          `json:"location"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	AllDay           bool            `json:"all_day"`
	Status           EventStatus     `json:"status"`
	Updated          int64           `json:"updated"`
	Synced           bool            `json:"synced"`
	Attendees        json.RawMessage `json:"attendees,omitempty"`
	Reminders        json.RawMessage `json:"reminders,omitempty"`
	Recurrence       json.RawMessage `json:"recurrence,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasRemote reports whether the event has ever been created remotely.
func (e *LocalEvent) HasRemote() bool {
	return e.RemoteEventID != nil && *e.RemoteEventID != ""
}

// EventPatch is a partial update of a LocalEvent. Nil fields are left untouched.
type EventPatch struct {
	RemoteEventID *string
	Title         *string
	Description   *string
	Location      *string
	StartTime     *time.Time
	EndTime       *time.Time
	AllDay        *bool
	Status        *EventStatus
	Updated       *int64
	Synced        *bool
	Attendees     *json.RawMessage
	Reminders     *json.RawMessage
	Recurrence    *json.RawMessage

	// IfUpdated, when set, applies the patch only while the stored Updated
	// still equals it.
	IfUpdated *int64
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.RemoteEventID == nil && p.Title == nil && p.Description == nil &&
		p.Location == nil && p.StartTime == nil && p.EndTime == nil &&
		p.AllDay == nil && p.Status == nil && p.Updated == nil &&
		p.Synced == nil && p.Attendees == nil && p.Reminders == nil &&
		p.Recurrence == nil
}
