package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/calsync/internal/model"
	"github.com/google/uuid"
)

const eventColumns = `id, remote_event_id, remote_calendar_id, title, description, location,
	start_time, end_time, all_day, status, updated, synced, attendees, reminders, recurrence,
	created_at, updated_at`

// ErrEventNotFound is returned by Update when the event does not exist.
var ErrEventNotFound = errors.New("event not found")

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Create inserts the event and returns the stored row. An empty ID is replaced
// with a new UUID; an empty status defaults to confirmed.
func (s *EventStore) Create(ctx context.Context, e *model.LocalEvent) (*model.LocalEvent, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := e.Status
	if status == "" {
		status = model.EventStatusConfirmed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, remote_event_id, remote_calendar_id, title, description, location,
			start_time, end_time, all_day, status, updated, synced, attendees, reminders, recurrence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullString(e.RemoteEventID), e.RemoteCalendarID, e.Title, e.Description, e.Location,
		e.StartTime.UTC(), e.EndTime.UTC(), boolInt(e.AllDay), string(status), e.Updated, boolInt(e.Synced),
		nullJSON(e.Attendees), nullJSON(e.Reminders), nullJSON(e.Recurrence),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *EventStore) GetByID(ctx context.Context, id string) (*model.LocalEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	return e, nil
}

// GetByRemoteEventID returns the local copy of a remote event, or nil if the
// event has never been seen locally.
func (s *EventStore) GetByRemoteEventID(ctx context.Context, calendarID, remoteEventID string) (*model.LocalEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE remote_calendar_id = ? AND remote_event_id = ?`,
		calendarID, remoteEventID,
	)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event by remote id: %w", err)
	}
	return e, nil
}

// Update applies the non-nil fields of patch and returns the updated row.
// A patch with IfUpdated set returns model.ErrEventChanged when the row was
// modified since it was read.
func (s *EventStore) Update(ctx context.Context, id string, patch model.EventPatch) (*model.LocalEvent, error) {
	var sets []string
	var args []any

	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.RemoteEventID != nil {
		set("remote_event_id", *patch.RemoteEventID)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Location != nil {
		set("location", *patch.Location)
	}
	if patch.StartTime != nil {
		set("start_time", patch.StartTime.UTC())
	}
	if patch.EndTime != nil {
		set("end_time", patch.EndTime.UTC())
	}
	if patch.AllDay != nil {
		set("all_day", boolInt(*patch.AllDay))
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Updated != nil {
		set("updated", *patch.Updated)
	}
	if patch.Synced != nil {
		set("synced", boolInt(*patch.Synced))
	}
	if patch.Attendees != nil {
		set("attendees", nullJSON(*patch.Attendees))
	}
	if patch.Reminders != nil {
		set("reminders", nullJSON(*patch.Reminders))
	}
	if patch.Recurrence != nil {
		set("recurrence", nullJSON(*patch.Recurrence))
	}

	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	where := "id = ?"
	if patch.IfUpdated != nil {
		where += " AND updated = ?"
		args = append(args, *patch.IfUpdated)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if patch.IfUpdated == nil {
			return nil, ErrEventNotFound
		}
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrEventNotFound
		}
		return nil, model.ErrEventChanged
	}

	return s.GetByID(ctx, id)
}

func (s *EventStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// DeleteByCalendar removes every local event of a calendar and returns how
// many rows were deleted.
func (s *EventStore) DeleteByCalendar(ctx context.Context, calendarID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE remote_calendar_id = ?", calendarID)
	if err != nil {
		return 0, fmt.Errorf("delete calendar events: %w", err)
	}
	return result.RowsAffected()
}

func (s *EventStore) ListAll(ctx context.Context) ([]model.LocalEvent, error) {
	return s.list(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_time ASC`)
}

func (s *EventStore) ListByCalendar(ctx context.Context, calendarID string) ([]model.LocalEvent, error) {
	return s.list(ctx,
		`SELECT `+eventColumns+` FROM events WHERE remote_calendar_id = ? ORDER BY start_time ASC`,
		calendarID,
	)
}

// ListUnsyncedForCalendar returns the events of a calendar that still need to
// be pushed, oldest edit first.
func (s *EventStore) ListUnsyncedForCalendar(ctx context.Context, calendarID string) ([]model.LocalEvent, error) {
	return s.list(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE remote_calendar_id = ? AND synced = 0
		 ORDER BY updated ASC, id ASC`,
		calendarID,
	)
}

// ListByDateRange returns events overlapping [start, end). An empty calendarID
// matches every calendar.
func (s *EventStore) ListByDateRange(ctx context.Context, calendarID string, start, end time.Time) ([]model.LocalEvent, error) {
	return s.list(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE start_time < ? AND end_time > ? AND (? = '' OR remote_calendar_id = ?)
		 ORDER BY all_day DESC, start_time ASC`,
		end.UTC(), start.UTC(), calendarID, calendarID,
	)
}

func (s *EventStore) list(ctx context.Context, query string, args ...any) ([]model.LocalEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.LocalEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.LocalEvent, error) {
	var e model.LocalEvent
	var remoteID, attendees, reminders, recurrence sql.NullString
	var allDayInt, syncedInt int
	var status string

	err := row.Scan(&e.ID, &remoteID, &e.RemoteCalendarID, &e.Title, &e.Description, &e.Location,
		&e.StartTime, &e.EndTime, &allDayInt, &status, &e.Updated, &syncedInt,
		&attendees, &reminders, &recurrence, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if remoteID.Valid {
		e.RemoteEventID = &remoteID.String
	}
	e.AllDay = allDayInt != 0
	e.Synced = syncedInt != 0
	e.Status = model.EventStatus(status)
	e.Attendees = rawJSON(attendees)
	e.Reminders = rawJSON(reminders)
	e.Recurrence = rawJSON(recurrence)
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
