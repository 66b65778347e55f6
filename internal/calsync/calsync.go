// Package calsync reconciles locally stored calendar events with a remote
// calendar service.
//
// A sync of one calendar is a pull followed by a push. The pull pages through
// the remote listing, either in full or from the stored sync token, and feeds
// every remote event to the reconciler, which creates, updates or deletes the
// matching local record using last-write-wins on the Updated timestamp. The
// push sends every local record that is not yet synced to the remote side.
// The sync token of the final page is persisted only after both phases ran.
//
// Work inside a calendar, and across calendars in SyncAll, is strictly
// sequential. SyncAll is single-flight: a call made while another one is
// running returns an empty result immediately.
package calsync

import (
	"context"
	"errors"

	"github.com/dukerupert/calsync/internal/model"
)

var (
	// ErrSyncTokenGone is returned (wrapped) by a RemoteClient when the
	// service no longer accepts a sync token and a full sync is required.
	ErrSyncTokenGone = errors.New("sync token is no longer valid")

	// ErrSyncInProgress is returned by SyncCalendar while another sync runs.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// RemoteClient is the remote calendar API.
type RemoteClient interface {
	ListCalendars(ctx context.Context) ([]model.Calendar, error)
	ListEvents(ctx context.Context, calendarID string, opts model.ListEventsOptions) (*model.EventPage, error)
	CreateEvent(ctx context.Context, calendarID string, event *model.RemoteEvent) (*model.RemoteEvent, error)
	UpdateEvent(ctx context.Context, calendarID, remoteEventID string, event *model.RemoteEvent) (*model.RemoteEvent, error)
}

// EventRepository is the local event store.
type EventRepository interface {
	GetByRemoteEventID(ctx context.Context, calendarID, remoteEventID string) (*model.LocalEvent, error)
	Create(ctx context.Context, event *model.LocalEvent) (*model.LocalEvent, error)
	Update(ctx context.Context, id string, patch model.EventPatch) (*model.LocalEvent, error)
	Delete(ctx context.Context, id string) error
	DeleteByCalendar(ctx context.Context, calendarID string) (int64, error)
	ListUnsyncedForCalendar(ctx context.Context, calendarID string) ([]model.LocalEvent, error)
}

// MetadataStore persists sync tokens, last sync times and the failure counter.
// Save must replace the stored state atomically.
type MetadataStore interface {
	Load(ctx context.Context) (*model.SyncState, error)
	Save(ctx context.Context, state *model.SyncState) error
	ClearToken(ctx context.Context, calendarID string) error
}

// StatusCallback is called whenever the sync status changes.
type StatusCallback func(model.SyncStatus)
