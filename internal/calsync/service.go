package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/calsync/internal/model"
)

// MaxPageSize is the largest page the remote event listing accepts.
const MaxPageSize = 2500

// Config holds sync service configuration.
type Config struct {
	// PageSize is the requested page size, capped at MaxPageSize.
	PageSize int64
	// PastDays and FutureDays bound the window of a full sync started by
	// IncrementalSync or SyncAll. Zero leaves that side unbounded.
	PastDays   int
	FutureDays int
}

// FullSyncOptions bounds a full sync to a time window.
type FullSyncOptions struct {
	TimeMin *time.Time
	TimeMax *time.Time
}

// Service owns the sync state of every calendar.
type Service struct {
	cfg      Config
	remote   RemoteClient
	events   EventRepository
	meta     MetadataStore
	logger   *slog.Logger
	callback StatusCallback
	now      func() time.Time

	syncing atomic.Bool

	mu    sync.Mutex
	state *model.SyncState
}

// New loads the persisted metadata and returns a ready service. callback may be nil.
func New(ctx context.Context, cfg Config, remote RemoteClient, events EventRepository, meta MetadataStore, callback StatusCallback, logger *slog.Logger) (*Service, error) {
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	state, err := meta.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync metadata: %w", err)
	}
	if state.Calendars == nil {
		state.Calendars = make(map[string]model.SyncMetadata)
	}

	return &Service{
		cfg:      cfg,
		remote:   remote,
		events:   events,
		meta:     meta,
		logger:   logger,
		callback: callback,
		now:      time.Now,
		state:    state,
	}, nil
}

// Status returns a snapshot of the sync state.
func (s *Service) Status() model.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := model.SyncStatus{
		Syncing:            s.syncing.Load(),
		LastSyncByCalendar: make(map[string]int64, len(s.state.Calendars)),
		FailedSyncCount:    s.state.FailedSyncCount,
	}
	for id, md := range s.state.Calendars {
		status.LastSyncByCalendar[id] = md.LastSync
		if md.SyncToken != "" {
			status.HasAnyToken = true
		}
	}
	return status
}

func (s *Service) notify() {
	if s.callback != nil {
		s.callback(s.Status())
	}
}

func (s *Service) syncToken(calendarID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Calendars[calendarID].SyncToken
}

// updateState applies fn to a copy of the state, persists it and swaps it in.
// The in-memory state is left untouched if the store rejects the write.
func (s *Service) updateState(ctx context.Context, fn func(*model.SyncState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	fn(next)
	if err := s.meta.Save(ctx, next); err != nil {
		return fmt.Errorf("save sync metadata: %w", err)
	}
	s.state = next
	return nil
}

// commit records a successful sync. An empty token keeps the previous one.
func (s *Service) commit(ctx context.Context, calendarID, token string) error {
	now := s.now().UnixMilli()
	return s.updateState(ctx, func(st *model.SyncState) {
		md := st.Calendars[calendarID]
		if token != "" {
			md.SyncToken = token
		}
		md.LastSync = now
		st.Calendars[calendarID] = md
	})
}

func (s *Service) recordFailure(ctx context.Context, calendarID string) {
	err := s.updateState(ctx, func(st *model.SyncState) {
		st.FailedSyncCount++
		if _, ok := st.Calendars[calendarID]; !ok {
			st.Calendars[calendarID] = model.SyncMetadata{}
		}
	})
	if err != nil {
		s.logger.Error("record sync failure", "calendar", calendarID, "error", err)
	}
}

func (s *Service) clearToken(ctx context.Context, calendarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.meta.ClearToken(ctx, calendarID); err != nil {
		return fmt.Errorf("clear sync token: %w", err)
	}
	if md, ok := s.state.Calendars[calendarID]; ok {
		md.SyncToken = ""
		s.state.Calendars[calendarID] = md
	}
	return nil
}

// defaultWindow is the full sync window used when the caller did not pick one.
func (s *Service) defaultWindow() FullSyncOptions {
	var opts FullSyncOptions
	now := s.now()
	if s.cfg.PastDays > 0 {
		t := now.AddDate(0, 0, -s.cfg.PastDays)
		opts.TimeMin = &t
	}
	if s.cfg.FutureDays > 0 {
		t := now.AddDate(0, 0, s.cfg.FutureDays)
		opts.TimeMax = &t
	}
	return opts
}
