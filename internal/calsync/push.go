package calsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/calsync/internal/model"
)

// unsyncedEvent is a local record waiting to be pushed: either unsyncedNew
// (never created remotely) or unsyncedModified (exists remotely, edited locally).
type unsyncedEvent interface {
	local() *model.LocalEvent
}

type unsyncedNew struct{ event *model.LocalEvent }

type unsyncedModified struct {
	event    *model.LocalEvent
	remoteID string
}

func (u unsyncedNew) local() *model.LocalEvent      { return u.event }
func (u unsyncedModified) local() *model.LocalEvent { return u.event }

func classify(e *model.LocalEvent) unsyncedEvent {
	if e.HasRemote() {
		return unsyncedModified{event: e, remoteID: *e.RemoteEventID}
	}
	return unsyncedNew{event: e}
}

// pushLocalChanges sends every unsynced local event of the calendar to the
// remote side. Per-event failures are recorded and the loop continues.
func (s *Service) pushLocalChanges(ctx context.Context, calendarID string, result *model.SyncResult) {
	events, err := s.events.ListUnsyncedForCalendar(ctx, calendarID)
	if err != nil {
		s.logger.Error("list unsynced events", "calendar", calendarID, "error", err)
		result.AddError("", fmt.Errorf("list unsynced events: %w", err))
		return
	}
	if len(events) == 0 {
		return
	}

	pushed := 0
	for i := range events {
		u := classify(&events[i])

		var err error
		switch u := u.(type) {
		case unsyncedNew:
			err = s.pushCreate(ctx, calendarID, u.event)
		case unsyncedModified:
			err = s.pushUpdate(ctx, calendarID, u.event)
		}
		if err != nil {
			s.logger.Warn("push event failed", "calendar", calendarID, "event", u.local().ID, "error", err)
			result.AddError(u.local().ID, err)
			continue
		}
		pushed++
	}

	s.logger.Info("pushed local changes", "calendar", calendarID, "pushed", pushed, "failed", len(events)-pushed)
}

func (s *Service) pushCreate(ctx context.Context, calendarID string, e *model.LocalEvent) error {
	created, err := s.remote.CreateEvent(ctx, calendarID, remoteFromLocal(e))
	if err != nil {
		return fmt.Errorf("create remote event: %w", err)
	}
	if created.ID == "" {
		return fmt.Errorf("create remote event: response has no id")
	}

	updated := s.confirmedUpdated(e, created)
	synced := true
	_, err = s.events.Update(ctx, e.ID, model.EventPatch{
		RemoteEventID: &created.ID,
		Updated:       &updated,
		Synced:        &synced,
		IfUpdated:     &e.Updated,
	})
	if errors.Is(err, model.ErrEventChanged) {
		// Edited while the create was in flight. Keep the remote id so the
		// next push updates instead of creating a duplicate.
		s.logger.Info("event edited during push, left unsynced", "event", e.ID)
		_, err = s.events.Update(ctx, e.ID, model.EventPatch{RemoteEventID: &created.ID})
	}
	if err != nil {
		return fmt.Errorf("mark event synced: %w", err)
	}
	return nil
}

func (s *Service) pushUpdate(ctx context.Context, calendarID string, e *model.LocalEvent) error {
	if !e.HasRemote() {
		return fmt.Errorf("event has no remote id")
	}
	saved, err := s.remote.UpdateEvent(ctx, calendarID, *e.RemoteEventID, remoteFromLocal(e))
	if err != nil {
		return fmt.Errorf("update remote event: %w", err)
	}

	updated := s.confirmedUpdated(e, saved)
	synced := true
	_, err = s.events.Update(ctx, e.ID, model.EventPatch{
		Updated:   &updated,
		Synced:    &synced,
		IfUpdated: &e.Updated,
	})
	if errors.Is(err, model.ErrEventChanged) {
		s.logger.Info("event edited during push, left unsynced", "event", e.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark event synced: %w", err)
	}
	return nil
}

// confirmedUpdated is the Updated value to store after a successful push:
// the remote's reported modification time, never moving backwards.
func (s *Service) confirmedUpdated(e *model.LocalEvent, saved *model.RemoteEvent) int64 {
	remote, err := parseUpdated(saved.Updated)
	if err != nil {
		s.logger.Debug("push response without usable updated", "event", e.ID, "error", err)
		return e.Updated
	}
	return max(remote, e.Updated)
}
