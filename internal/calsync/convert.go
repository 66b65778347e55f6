package calsync

import (
	"fmt"
	"time"

	"github.com/dukerupert/calsync/internal/model"
)

const dateLayout = "2006-01-02"

// parseUpdated converts a remote RFC3339 "updated" value to epoch milliseconds.
func parseUpdated(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing updated timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("parse updated %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

// parseEventTime returns the instant of a remote start/end value and whether
// it is date-only. Date-only values are midnight UTC of that date.
func parseEventTime(d *model.EventDateTime) (time.Time, bool, error) {
	if d == nil {
		return time.Time{}, false, fmt.Errorf("missing date")
	}
	if d.DateTime != "" {
		t, err := time.Parse(time.RFC3339, d.DateTime)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse dateTime %q: %w", d.DateTime, err)
		}
		return t, false, nil
	}
	if d.Date != "" {
		t, err := time.ParseInLocation(dateLayout, d.Date, time.UTC)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse date %q: %w", d.Date, err)
		}
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("empty date")
}

// remoteFields is the decoded mutable content of a remote event.
type remoteFields struct {
	title       string
	description string
	location    string
	start       time.Time
	end         time.Time
	allDay      bool
	status      model.EventStatus
	updated     int64
}

func decodeRemote(r *model.RemoteEvent) (*remoteFields, error) {
	updated, err := parseUpdated(r.Updated)
	if err != nil {
		return nil, err
	}
	// All-day detection follows the start field only.
	start, allDay, err := parseEventTime(r.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, _, err := parseEventTime(r.End)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	title := r.Summary
	if title == "" {
		title = model.UntitledEvent
	}
	status := r.Status
	if status == "" {
		status = model.EventStatusConfirmed
	}

	return &remoteFields{
		title:       title,
		description: r.Description,
		location:    r.Location,
		start:       start,
		end:         end,
		allDay:      allDay,
		status:      status,
		updated:     updated,
	}, nil
}

// localFromRemote builds a new, already synced local record from a remote event.
func localFromRemote(r *model.RemoteEvent, calendarID string) (*model.LocalEvent, error) {
	f, err := decodeRemote(r)
	if err != nil {
		return nil, err
	}
	remoteID := r.ID
	return &model.LocalEvent{
		RemoteEventID:    &remoteID,
		RemoteCalendarID: calendarID,
		Title:            f.title,
		Description:      f.description,
		Location:         f.location,
		StartTime:        f.start,
		EndTime:          f.end,
		AllDay:           f.allDay,
		Status:           f.status,
		Updated:          f.updated,
		Synced:           true,
		Attendees:        r.Attendees,
		Reminders:        r.Reminders,
		Recurrence:       r.Recurrence,
	}, nil
}

// overwritePatch replaces every mutable field of a local record with the
// remote content and marks it synced.
func overwritePatch(r *model.RemoteEvent, f *remoteFields) model.EventPatch {
	synced := true
	return model.EventPatch{
		Title:       &f.title,
		Description: &f.description,
		Location:    &f.location,
		StartTime:   &f.start,
		EndTime:     &f.end,
		AllDay:      &f.allDay,
		Status:      &f.status,
		Updated:     &f.updated,
		Synced:      &synced,
		Attendees:   &r.Attendees,
		Reminders:   &r.Reminders,
		Recurrence:  &r.Recurrence,
	}
}

// remoteFromLocal serializes a local record for the remote API. All-day events
// use date-only start/end values.
func remoteFromLocal(e *model.LocalEvent) *model.RemoteEvent {
	r := &model.RemoteEvent{
		Status:      e.Status,
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Attendees:   e.Attendees,
		Reminders:   e.Reminders,
		Recurrence:  e.Recurrence,
	}
	if e.RemoteEventID != nil {
		r.ID = *e.RemoteEventID
	}
	if e.AllDay {
		r.Start = &model.EventDateTime{Date: e.StartTime.UTC().Format(dateLayout)}
		r.End = &model.EventDateTime{Date: e.EndTime.UTC().Format(dateLayout)}
	} else {
		r.Start = &model.EventDateTime{DateTime: e.StartTime.Format(time.RFC3339)}
		r.End = &model.EventDateTime{DateTime: e.EndTime.Format(time.RFC3339)}
	}
	return r
}
