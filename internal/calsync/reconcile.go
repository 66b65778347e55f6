package calsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/calsync/internal/model"
)

// processRemoteEvent reconciles one remote event with its local copy. Failures
// are recorded in result and never abort the surrounding pull.
func (s *Service) processRemoteEvent(ctx context.Context, remote *model.RemoteEvent, calendarID string, result *model.SyncResult) {
	if err := s.reconcile(ctx, remote, calendarID, result); err != nil {
		s.logger.Warn("reconcile event failed", "calendar", calendarID, "event", remote.ID, "error", err)
		result.AddError(remote.ID, err)
	}
}

func (s *Service) reconcile(ctx context.Context, remote *model.RemoteEvent, calendarID string, result *model.SyncResult) error {
	if remote.ID == "" {
		return fmt.Errorf("remote event has no id")
	}

	local, err := s.events.GetByRemoteEventID(ctx, calendarID, remote.ID)
	if err != nil {
		return fmt.Errorf("lookup local event: %w", err)
	}

	if remote.Status == model.EventStatusCancelled {
		if local == nil {
			return nil
		}
		if err := s.events.Delete(ctx, local.ID); err != nil {
			return err
		}
		result.Deleted++
		return nil
	}

	if local == nil {
		event, err := localFromRemote(remote, calendarID)
		if err != nil {
			return err
		}
		if _, err := s.events.Create(ctx, event); err != nil {
			return err
		}
		result.Added++
		return nil
	}

	remoteUpdated, err := parseUpdated(remote.Updated)
	if err != nil {
		return err
	}

	switch {
	case remoteUpdated > local.Updated:
		f, err := decodeRemote(remote)
		if err != nil {
			return err
		}
		patch := overwritePatch(remote, f)
		patch.IfUpdated = &local.Updated
		_, err = s.events.Update(ctx, local.ID, patch)
		if errors.Is(err, model.ErrEventChanged) {
			// A local edit landed after the lookup; the push phase sends it.
			s.logger.Info("event edited during pull, keeping local", "event", local.ID)
			return nil
		}
		if err != nil {
			return err
		}
		result.Updated++

	case remoteUpdated < local.Updated && !local.Synced:
		// The local edit is newer than what the pull brought in: it wins.
		if err := s.pushUpdate(ctx, calendarID, local); err != nil {
			return err
		}
		result.Updated++

	default:
		// Equal timestamps, or local newer and already pushed.
	}
	return nil
}
