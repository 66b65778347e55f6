package calsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/calsync/internal/model"
)

// fakeRemote is an in-memory RemoteClient. listEvents decides what each page
// request returns; create and update default to echoing the payload.
type fakeRemote struct {
	mu sync.Mutex

	calendars       []model.Calendar
	listCalendarsFn func(ctx context.Context) ([]model.Calendar, error)
	listEvents      func(calendarID string, opts model.ListEventsOptions) (*model.EventPage, error)
	createFn        func(calendarID string, e *model.RemoteEvent) (*model.RemoteEvent, error)
	updateFn        func(calendarID, id string, e *model.RemoteEvent) (*model.RemoteEvent, error)

	listCalls   []model.ListEventsOptions
	createCalls []*model.RemoteEvent
	updateCalls []*model.RemoteEvent
	nextID      int
}

func (f *fakeRemote) ListCalendars(ctx context.Context) ([]model.Calendar, error) {
	if f.listCalendarsFn != nil {
		return f.listCalendarsFn(ctx)
	}
	return f.calendars, nil
}

func (f *fakeRemote) ListEvents(_ context.Context, calendarID string, opts model.ListEventsOptions) (*model.EventPage, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, opts)
	fn := f.listEvents
	f.mu.Unlock()

	if fn == nil {
		return &model.EventPage{}, nil
	}
	return fn(calendarID, opts)
}

func (f *fakeRemote) CreateEvent(_ context.Context, calendarID string, e *model.RemoteEvent) (*model.RemoteEvent, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, e)
	f.nextID++
	id := fmt.Sprintf("remote-%d", f.nextID)
	fn := f.createFn
	f.mu.Unlock()

	if fn != nil {
		return fn(calendarID, e)
	}
	out := *e
	out.ID = id
	out.Updated = rfc3339(baseTime.Add(time.Hour))
	return &out, nil
}

func (f *fakeRemote) UpdateEvent(_ context.Context, calendarID, id string, e *model.RemoteEvent) (*model.RemoteEvent, error) {
	f.mu.Lock()
	f.updateCalls = append(f.updateCalls, e)
	fn := f.updateFn
	f.mu.Unlock()

	if fn != nil {
		return fn(calendarID, id, e)
	}
	out := *e
	out.ID = id
	out.Updated = rfc3339(baseTime.Add(time.Hour))
	return &out, nil
}

// fakeRepo is an in-memory EventRepository with the same constraints as the
// sqlite store.
type fakeRepo struct {
	mu          sync.Mutex
	events      map[string]*model.LocalEvent
	nextID      int
	updateCalls int
	failUpdate  map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{events: make(map[string]*model.LocalEvent), failUpdate: make(map[string]error)}
}

func (r *fakeRepo) GetByRemoteEventID(_ context.Context, calendarID, remoteID string) (*model.LocalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.RemoteCalendarID == calendarID && e.RemoteEventID != nil && *e.RemoteEventID == remoteID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) Create(_ context.Context, e *model.LocalEvent) (*model.LocalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Synced && !e.HasRemote() {
		return nil, errors.New("synced event without remote id")
	}
	cp := *e
	if cp.ID == "" {
		r.nextID++
		cp.ID = fmt.Sprintf("local-%d", r.nextID)
	}
	r.events[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) Update(_ context.Context, id string, p model.EventPatch) (*model.LocalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if err := r.failUpdate[id]; err != nil {
		return nil, err
	}
	e, ok := r.events[id]
	if !ok {
		return nil, errors.New("event not found")
	}
	if p.IfUpdated != nil && *p.IfUpdated != e.Updated {
		return nil, model.ErrEventChanged
	}
	next := *e
	if p.RemoteEventID != nil {
		v := *p.RemoteEventID
		next.RemoteEventID = &v
	}
	if p.Title != nil {
		next.Title = *p.Title
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Location != nil {
		next.Location = *p.Location
	}
	if p.StartTime != nil {
		next.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		next.EndTime = *p.EndTime
	}
	if p.AllDay != nil {
		next.AllDay = *p.AllDay
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Updated != nil {
		next.Updated = *p.Updated
	}
	if p.Synced != nil {
		next.Synced = *p.Synced
	}
	if p.Attendees != nil {
		next.Attendees = *p.Attendees
	}
	if p.Reminders != nil {
		next.Reminders = *p.Reminders
	}
	if p.Recurrence != nil {
		next.Recurrence = *p.Recurrence
	}
	if next.Synced && !next.HasRemote() {
		return nil, errors.New("synced event without remote id")
	}
	r.events[id] = &next
	out := next
	return &out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}

func (r *fakeRepo) DeleteByCalendar(_ context.Context, calendarID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.events {
		if e.RemoteCalendarID == calendarID {
			delete(r.events, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) ListUnsyncedForCalendar(_ context.Context, calendarID string) ([]model.LocalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LocalEvent
	for _, e := range r.events {
		if e.RemoteCalendarID == calendarID && !e.Synced {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) get(id string) *model.LocalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (r *fakeRepo) countCalendar(calendarID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.RemoteCalendarID == calendarID {
			n++
		}
	}
	return n
}

// fakeMeta is an in-memory MetadataStore.
type fakeMeta struct {
	mu      sync.Mutex
	state   *model.SyncState
	saves   int
	saveErr error
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{state: model.NewSyncState()}
}

func (m *fakeMeta) Load(context.Context) (*model.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

func (m *fakeMeta) Save(_ context.Context, s *model.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.state = s.Clone()
	return nil
}

func (m *fakeMeta) ClearToken(_ context.Context, calendarID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if md, ok := m.state.Calendars[calendarID]; ok {
		md.SyncToken = ""
		m.state.Calendars[calendarID] = md
	}
	return nil
}

func (m *fakeMeta) snapshot() *model.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func remoteEvent(id, title string, updated time.Time) model.RemoteEvent {
	return model.RemoteEvent{
		ID:      id,
		Status:  model.EventStatusConfirmed,
		Summary: title,
		Start:   &model.EventDateTime{DateTime: "2026-03-10T10:00:00Z"},
		End:     &model.EventDateTime{DateTime: "2026-03-10T11:00:00Z"},
		Updated: rfc3339(updated),
	}
}

func newTestService(t *testing.T, remote *fakeRemote, repo *fakeRepo, meta *fakeMeta) *Service {
	t.Helper()
	svc, err := New(context.Background(), Config{}, remote, repo, meta, nil, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return baseTime.Add(24 * time.Hour) }
	return svc
}

// singlePage serves items as one page carrying token.
func singlePage(token string, items ...model.RemoteEvent) func(string, model.ListEventsOptions) (*model.EventPage, error) {
	return func(string, model.ListEventsOptions) (*model.EventPage, error) {
		return &model.EventPage{Items: items, NextSyncToken: token}, nil
	}
}

func remoteID(s string) *string { return &s }
