package calsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/calsync/internal/model"
)

// FullSync pulls every non-deleted event of the calendar in the optional
// window, ignoring any stored sync token, then pushes local changes. The sync
// token of the final page becomes the new incremental baseline. On failure
// the persisted failure counter is incremented and the error returned.
func (s *Service) FullSync(ctx context.Context, calendarID string, opts FullSyncOptions) (*model.SyncResult, error) {
	result, err := s.fullSync(ctx, calendarID, opts)
	if err != nil {
		s.recordFailure(ctx, calendarID)
		return nil, err
	}
	return result, nil
}

// IncrementalSync pulls the changes since the stored sync token, including
// deletions, then pushes local changes. Without a token it runs a full sync.
// If the remote side rejects the token, the token and every local event of
// the calendar are discarded and a single full sync is run instead.
func (s *Service) IncrementalSync(ctx context.Context, calendarID string) (*model.SyncResult, error) {
	result, err := s.incrementalSync(ctx, calendarID)
	if err != nil {
		s.recordFailure(ctx, calendarID)
		return nil, err
	}
	return result, nil
}

// SyncAll incrementally syncs every remote calendar, one after another. A
// failed calendar is reported in its result and does not stop the others. If
// another SyncAll is running, SyncAll returns an empty slice immediately.
func (s *Service) SyncAll(ctx context.Context) ([]*model.SyncResult, error) {
	results, _, err := s.TrySyncAll(ctx)
	return results, err
}

// TrySyncAll is SyncAll that also reports whether it actually ran.
func (s *Service) TrySyncAll(ctx context.Context) ([]*model.SyncResult, bool, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("sync all skipped, already running")
		return []*model.SyncResult{}, false, nil
	}
	s.notify()
	defer func() {
		s.syncing.Store(false)
		s.notify()
	}()

	calendars, err := s.remote.ListCalendars(ctx)
	if err != nil {
		return []*model.SyncResult{}, true, fmt.Errorf("list calendars: %w", err)
	}

	results := make([]*model.SyncResult, 0, len(calendars))
	for _, cal := range calendars {
		result, err := s.IncrementalSync(ctx, cal.ID)
		if err != nil {
			s.logger.Error("calendar sync failed", "calendar", cal.ID, "error", err)
			result = model.NewSyncResult(model.SyncTypeIncremental, cal.ID)
			result.Err = err.Error()
		}
		results = append(results, result)
		s.notify()
	}

	s.logger.Info("sync all complete", "calendars", len(calendars))
	return results, true, nil
}

// SyncCalendar incrementally syncs one calendar under the same single-flight
// guard as SyncAll. It returns ErrSyncInProgress instead of waiting.
func (s *Service) SyncCalendar(ctx context.Context, calendarID string) (*model.SyncResult, error) {
	return s.exclusive(func() (*model.SyncResult, error) {
		return s.IncrementalSync(ctx, calendarID)
	})
}

// FullSyncCalendar is FullSync under the single-flight guard.
func (s *Service) FullSyncCalendar(ctx context.Context, calendarID string, opts FullSyncOptions) (*model.SyncResult, error) {
	return s.exclusive(func() (*model.SyncResult, error) {
		return s.FullSync(ctx, calendarID, opts)
	})
}

func (s *Service) exclusive(fn func() (*model.SyncResult, error)) (*model.SyncResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	s.notify()
	defer func() {
		s.syncing.Store(false)
		s.notify()
	}()

	return fn()
}

func (s *Service) fullSync(ctx context.Context, calendarID string, opts FullSyncOptions) (*model.SyncResult, error) {
	s.logger.Info("full sync started", "calendar", calendarID)
	result := model.NewSyncResult(model.SyncTypeFull, calendarID)

	token, err := s.pull(ctx, calendarID, model.ListEventsOptions{
		TimeMin:     opts.TimeMin,
		TimeMax:     opts.TimeMax,
		MaxResults:  s.cfg.PageSize,
		ShowDeleted: false,
	}, result)
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, calendarID, token, result)
}

func (s *Service) incrementalSync(ctx context.Context, calendarID string) (*model.SyncResult, error) {
	token := s.syncToken(calendarID)
	if token == "" {
		return s.fullSync(ctx, calendarID, s.defaultWindow())
	}

	s.logger.Info("incremental sync started", "calendar", calendarID)
	result := model.NewSyncResult(model.SyncTypeIncremental, calendarID)

	next, err := s.pull(ctx, calendarID, model.ListEventsOptions{
		SyncToken:   token,
		MaxResults:  s.cfg.PageSize,
		ShowDeleted: true,
	}, result)
	if errors.Is(err, ErrSyncTokenGone) {
		s.logger.Warn("sync token expired, resetting calendar", "calendar", calendarID)
		if err := s.resetCalendar(ctx, calendarID); err != nil {
			return nil, err
		}
		return s.fullSync(ctx, calendarID, s.defaultWindow())
	}
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, calendarID, next, result)
}

// pull pages through the remote listing and reconciles every item. It
// returns the sync token of the final page, if any.
func (s *Service) pull(ctx context.Context, calendarID string, opts model.ListEventsOptions, result *model.SyncResult) (string, error) {
	pages := 0
	seen := make(map[string]bool)
	for {
		page, err := s.remote.ListEvents(ctx, calendarID, opts)
		if err != nil {
			return "", fmt.Errorf("list events: %w", err)
		}
		pages++

		for i := range page.Items {
			s.processRemoteEvent(ctx, &page.Items[i], calendarID, result)
		}

		if page.NextPageToken == "" {
			s.logger.Debug("pull complete", "calendar", calendarID, "pages", pages)
			return page.NextSyncToken, nil
		}
		if seen[page.NextPageToken] {
			return "", fmt.Errorf("list events: page token %q repeated after %d pages", page.NextPageToken, pages)
		}
		seen[page.NextPageToken] = true
		opts.PageToken = page.NextPageToken
	}
}

// finish pushes local changes and persists the new sync position.
func (s *Service) finish(ctx context.Context, calendarID, token string, result *model.SyncResult) (*model.SyncResult, error) {
	s.pushLocalChanges(ctx, calendarID, result)

	if err := s.commit(ctx, calendarID, token); err != nil {
		return nil, err
	}

	s.logger.Info("sync complete",
		"calendar", calendarID,
		"type", result.Type,
		"added", result.Added,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *Service) resetCalendar(ctx context.Context, calendarID string) error {
	if err := s.clearToken(ctx, calendarID); err != nil {
		return err
	}
	n, err := s.events.DeleteByCalendar(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("discard local events: %w", err)
	}
	s.logger.Info("discarded local events", "calendar", calendarID, "count", n)
	return nil
}
