package model

type SyncType string

const (
	SyncTypeFull        SyncType = "full"
	SyncTypeIncremental SyncType = "incremental"
)

// EventError records a failure to reconcile or push a single event.
type EventError struct {
	EventID string `json:"event_id"`
	Error   string `json:"error"`
}

// SyncResult summarizes one sync of one calendar. Err is only set by SyncAll
// when the calendar's sync failed as a whole.
type SyncResult struct {
	Type       SyncType     `json:"type"`
	CalendarID string       `json:"calendar_id"`
	Added      int          `json:"added"`
	Updated    int          `json:"updated"`
	Deleted    int          `json:"deleted"`
	Errors     []EventError `json:"errors"`
	Err        string       `json:"error,omitempty"`
}

// NewSyncResult returns an empty result with a non-nil error list.
func NewSyncResult(typ SyncType, calendarID string) *SyncResult {
	return &SyncResult{
		Type:       typ,
		CalendarID: calendarID,
		Errors:     []EventError{},
	}
}

// AddError appends a per-event failure.
func (r *SyncResult) AddError(eventID string, err error) {
	r.Errors = append(r.Errors, EventError{EventID: eventID, Error: err.Error()})
}

// SyncMetadata is the persisted sync position of one calendar.
type SyncMetadata struct {
	SyncToken string `json:"sync_token,omitempty"`
	LastSync  int64  `json:"last_sync"`
}

// SyncState is everything the metadata store persists.
type SyncState struct {
	Calendars       map[string]SyncMetadata `json:"calendars"`
	FailedSyncCount int                     `json:"failed_sync_count"`
}

// NewSyncState returns an empty state.
func NewSyncState() *SyncState {
	return &SyncState{Calendars: make(map[string]SyncMetadata)}
}

// Clone returns a deep copy so callers can build the next state without
// touching the current one.
func (s *SyncState) Clone() *SyncState {
	out := &SyncState{
		Calendars:       make(map[string]SyncMetadata, len(s.Calendars)),
		FailedSyncCount: s.FailedSyncCount,
	}
	for id, md := range s.Calendars {
		out.Calendars[id] = md
	}
	return out
}

// SyncStatus is a read-only snapshot of the sync service.
type SyncStatus struct {
	Syncing            bool             `json:"syncing"`
	LastSyncByCalendar map[string]int64 `json:"last_sync_by_calendar"`
	FailedSyncCount    int              `json:"failed_sync_count"`
	HasAnyToken        bool             `json:"has_any_token"`
}
