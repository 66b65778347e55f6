package calsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/calsync/internal/model"
)

func TestFullSyncPagination(t *testing.T) {
	page1 := make([]model.RemoteEvent, 250)
	for i := range page1 {
		page1[i] = remoteEvent(fmt.Sprintf("r%03d", i), "event", baseTime)
	}
	last := remoteEvent("r250", "last", baseTime)

	remote := &fakeRemote{
		listEvents: func(_ string, opts model.ListEventsOptions) (*model.EventPage, error) {
			switch opts.PageToken {
			case "":
				// Intermediate pages never carry a usable sync token.
				return &model.EventPage{Items: page1, NextPageToken: "page-2", NextSyncToken: "not-final"}, nil
			case "page-2":
				return &model.EventPage{Items: []model.RemoteEvent{last}, NextSyncToken: "tok-final"}, nil
			}
			return nil, fmt.Errorf("unexpected page token %q", opts.PageToken)
		},
	}
	repo := newFakeRepo()
	meta := newFakeMeta()
	svc := newTestService(t, remote, repo, meta)

	result, err := svc.FullSync(context.Background(), "cal", FullSyncOptions{})
	if err != nil {
		t.Fatalf("full sync: %v", err)
	}

	if result.Type != model.SyncTypeFull {
		t.Errorf("type = %q, want full", result.Type)
	}
	if result.Added != 251 {
		t.Errorf("added = %d, want 251", result.Added)
	}
	if n := repo.countCalendar("cal"); n != 251 {
		t.Errorf("stored = %d, want 251", n)
	}
	if len(remote.listCalls) != 2 {
		t.Fatalf("list calls = %d, want 2", len(remote.listCalls))
	}
	for i, call := range remote.listCalls {
		if call.MaxResults != MaxPageSize {
			t.Errorf("call %d max results = %d, want %d", i, call.MaxResults, MaxPageSize)
		}
		if call.ShowDeleted {
			t.Errorf("call %d requested deleted events on full sync", i)
		}
		if call.SyncToken != "" {
			t.Errorf("call %d sent sync token %q on full sync", i, call.SyncToken)
		}
	}
	if got := meta.snapshot().Calendars["cal"].SyncToken; got != "tok-final" {
		t.Errorf("stored token = %q, want tok-final", got)
	}
}

func TestFullSyncIgnoresStoredToken(t *testing.T) {
	meta := newFakeMeta()
	meta.state.Calendars["cal"] = model.SyncMetadata{SyncToken: "old", LastSync: 1}
	remote := &fakeRemote{listEvents: singlePage("new")}
	svc := newTestService(t, remote, newFakeRepo(), meta)

	from := baseTime.AddDate(0, -1, 0)
	to := baseTime.AddDate(0, 1, 0)
	if _, err := svc.FullSync(context.Background(), "cal", FullSyncOptions{TimeMin: &from, TimeMax: &to}); err != nil {
		t.Fatalf("full sync: %v", err)
	}

	call := remote.listCalls[0]
	if call.SyncToken != "" {
		t.Errorf("sync token = %q, want empty", call.SyncToken)
	}
	if call.TimeMin == nil || !call.TimeMin.Equal(from) || call.TimeMax == nil || !call.TimeMax.Equal(to) {
		t.Errorf("window = %v..%v, want %v..%v", call.TimeMin, call.TimeMax, from, to)
	}
	md := meta.snapshot().Calendars["cal"]
	if md.SyncToken != "new" {
		t.Errorf("token = %q, want new", md.SyncToken)
	}
	if want := svc.now().UnixMilli(); md.LastSync != want {
		t.Errorf("last sync = %d, want %d", md.LastSync, want)
	}
}

func TestIncrementalSyncUsesToken(t *testing.T) {
	meta := newFakeMeta()
	meta.state.Calendars["cal"] = model.SyncMetadata{SyncToken: "tok-1"}
	remote := &fakeRemote{listEvents: singlePage("tok-2", remoteEvent("r1", "new", baseTime))}
	svc := newTestService(t, remote, newFakeRepo(), meta)

	result, err := svc.IncrementalSync(context.Background(), "cal")
	if err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if result.Type != model.SyncTypeIncremental {
		t.Errorf("type = %q, want incremental", result.Type)
	}
	call := remote.listCalls[0]
	if call.SyncToken != "tok-1" || !call.ShowDeleted {
		t.Errorf("call = %+v, want token tok-1 with deleted events", call)
	}
	if call.TimeMin != nil || call.TimeMax != nil {
		t.Error("incremental sync must not send a time window")
	}
	if got := meta.snapshot().Calendars["cal"].SyncToken; got != "tok-2" {
		t.Errorf("token = %q, want tok-2", got)
	}
}

func TestIncrementalSyncWithoutTokenRunsFull(t *testing.T) {
	remote := &fakeRemote{listEvents: singlePage("tok")}
	meta := newFakeMeta()
	svc, err := New(context.Background(), Config{PastDays: 30, FutureDays: 90}, remote, newFakeRepo(), meta, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return baseTime }

	result, err := svc.IncrementalSync(context.Background(), "cal")
	if err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if result.Type != model.SyncTypeFull {
		t.Errorf("type = %q, want full", result.Type)
	}
	call := remote.listCalls[0]
	if call.TimeMin == nil || !call.TimeMin.Equal(baseTime.AddDate(0, 0, -30)) {
		t.Errorf("time min = %v", call.TimeMin)
	}
	if call.TimeMax == nil || !call.TimeMax.Equal(baseTime.AddDate(0, 0, 90)) {
		t.Errorf("time max = %v", call.TimeMax)
	}
}

func TestIncrementalSyncKeepsTokenWhenNoneReturned(t *testing.T) {
	meta := newFakeMeta()
	meta.state.Calendars["cal"] = model.SyncMetadata{SyncToken: "keep"}
	svc := newTestService(t, &fakeRemote{listEvents: singlePage("")}, newFakeRepo(), meta)

	if _, err := svc.IncrementalSync(context.Background(), "cal"); err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if got := meta.snapshot().Calendars["cal"].SyncToken; got != "keep" {
		t.Errorf("token = %q, want keep", got)
	}
}

func TestIncrementalSyncTokenExpired(t *testing.T) {
	meta := newFakeMeta()
	meta.state.Calendars["cal"] = model.SyncMetadata{SyncToken: "stale", LastSync: 5}
	repo := newFakeRepo()
	for i := range 3 {
		seedSynced(t, repo, "cal", fmt.Sprintf("old-%d", i), "stale copy", baseTime)
	}
	seedSynced(t, repo, "other", "keep", "other calendar", baseTime)

	remote := &fakeRemote{
		listEvents: func(_ string, opts model.ListEventsOptions) (*model.EventPage, error) {
			if opts.SyncToken != "" {
				return nil, fmt.Errorf("remote says: %w", ErrSyncTokenGone)
			}
			return &model.EventPage{NextSyncToken: "fresh"}, nil
		},
	}
	svc := newTestService(t, remote, repo, meta)

	result, err := svc.IncrementalSync(context.Background(), "cal")
	if err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if result.Type != model.SyncTypeFull {
		t.Errorf("type = %q, want full", result.Type)
	}
	if n := repo.countCalendar("cal"); n != 0 {
		t.Errorf("residual events = %d, want 0", n)
	}
	if n := repo.countCalendar("other"); n != 1 {
		t.Errorf("other calendar events = %d, want 1", n)
	}
	if len(remote.listCalls) != 2 {
		t.Errorf("list calls = %d, want 2", len(remote.listCalls))
	}
	state := meta.snapshot()
	if state.Calendars["cal"].SyncToken != "fresh" {
		t.Errorf("token = %q, want fresh", state.Calendars["cal"].SyncToken)
	}
	if state.FailedSyncCount != 0 {
		t.Errorf("failed count = %d, want 0", state.FailedSyncCount)
	}
}

func TestIncrementalSyncTokenExpiredRetriesOnce(t *testing.T) {
	meta := newFakeMeta()
	meta.state.Calendars["cal"] = model.SyncMetadata{SyncToken: "stale"}
	remote := &fakeRemote{
		listEvents: func(string, model.ListEventsOptions) (*model.EventPage, error) {
			return nil, ErrSyncTokenGone
		},
	}
	svc := newTestService(t, remote, newFakeRepo(), meta)

	_, err := svc.IncrementalSync(context.Background(), "cal")
	if !errors.Is(err, ErrSyncTokenGone) {
		t.Fatalf("err = %v, want ErrSyncTokenGone", err)
	}
	if len(remote.listCalls) != 2 {
		t.Errorf("list calls = %d, want 2", len(remote.listCalls))
	}
	if got := meta.snapshot().FailedSyncCount; got != 1 {
		t.Errorf("failed count = %d, want 1", got)
	}
}

func TestSyncFailureRecorded(t *testing.T) {
	meta := newFakeMeta()
	meta.state.Calendars["cal"] = model.SyncMetadata{SyncToken: "tok", LastSync: 123}
	remote := &fakeRemote{
		listEvents: func(string, model.ListEventsOptions) (*model.EventPage, error) {
			return nil, errors.New("connection reset")
		},
	}
	svc := newTestService(t, remote, newFakeRepo(), meta)

	if _, err := svc.IncrementalSync(context.Background(), "cal"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := svc.FullSync(context.Background(), "cal", FullSyncOptions{}); err == nil {
		t.Fatal("expected error")
	}

	state := meta.snapshot()
	if state.FailedSyncCount != 2 {
		t.Errorf("failed count = %d, want 2", state.FailedSyncCount)
	}
	md := state.Calendars["cal"]
	if md.SyncToken != "tok" || md.LastSync != 123 {
		t.Errorf("metadata = %+v, want unchanged", md)
	}
	if got := svc.Status().FailedSyncCount; got != 2 {
		t.Errorf("status failed count = %d, want 2", got)
	}
}

func TestSyncPerEventErrorsDoNotAbort(t *testing.T) {
	bad := remoteEvent("bad", "broken", baseTime)
	bad.Start = nil
	good := remoteEvent("good", "fine", baseTime)

	meta := newFakeMeta()
	repo := newFakeRepo()
	svc := newTestService(t, &fakeRemote{listEvents: singlePage("tok", bad, good)}, repo, meta)

	result, err := svc.FullSync(context.Background(), "cal", FullSyncOptions{})
	if err != nil {
		t.Fatalf("full sync: %v", err)
	}
	if result.Added != 1 || len(result.Errors) != 1 {
		t.Errorf("result = %+v, want 1 added and 1 error", result)
	}
	if got := meta.snapshot().Calendars["cal"].SyncToken; got != "tok" {
		t.Errorf("token = %q, want tok", got)
	}
	if meta.snapshot().FailedSyncCount != 0 {
		t.Error("per-event errors must not count as a failed sync")
	}
}

func TestSyncPushRoundTrip(t *testing.T) {
	remote := &fakeRemote{}
	remote.listEvents = func(_ string, opts model.ListEventsOptions) (*model.EventPage, error) {
		if opts.SyncToken == "" {
			return &model.EventPage{NextSyncToken: "t1"}, nil
		}
		// The next incremental pull echoes what was pushed.
		remote.mu.Lock()
		defer remote.mu.Unlock()
		echo := *remote.createCalls[0]
		echo.ID = "remote-1"
		echo.Updated = rfc3339(baseTime.Add(time.Hour))
		return &model.EventPage{Items: []model.RemoteEvent{echo}, NextSyncToken: "t2"}, nil
	}
	repo := newFakeRepo()
	svc := newTestService(t, remote, repo, newFakeMeta())
	ctx := context.Background()

	local, err := repo.Create(ctx, &model.LocalEvent{
		RemoteCalendarID: "cal",
		Title:            "Offsite",
		StartTime:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EndTime:          time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		AllDay:           true,
		Status:           model.EventStatusConfirmed,
		Updated:          baseTime.UnixMilli(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.IncrementalSync(ctx, "cal"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if len(remote.createCalls) != 1 {
		t.Fatalf("create calls = %d, want 1", len(remote.createCalls))
	}
	sent := remote.createCalls[0]
	if sent.Start.Date != "2026-03-10" || sent.Start.DateTime != "" || sent.End.Date != "2026-03-11" {
		t.Errorf("all-day payload = %+v / %+v", sent.Start, sent.End)
	}

	got := repo.get(local.ID)
	if !got.Synced || got.RemoteEventID == nil || *got.RemoteEventID != "remote-1" {
		t.Fatalf("after push = %+v", got)
	}
	if got.Updated != baseTime.Add(time.Hour).UnixMilli() {
		t.Errorf("updated = %d, want remote timestamp", got.Updated)
	}

	writes := repo.updateCalls
	result, err := svc.IncrementalSync(ctx, "cal")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(remote.createCalls) != 1 || len(remote.updateCalls) != 0 {
		t.Errorf("re-pushed: creates=%d updates=%d", len(remote.createCalls), len(remote.updateCalls))
	}
	if repo.updateCalls != writes {
		t.Errorf("second sync wrote %d times, want 0", repo.updateCalls-writes)
	}
	if result.Added != 0 || result.Updated != 0 {
		t.Errorf("second result = %+v, want no changes", result)
	}
}

func TestSyncPushFailureContinues(t *testing.T) {
	remote := &fakeRemote{listEvents: singlePage("tok")}
	remote.createFn = func(_ string, e *model.RemoteEvent) (*model.RemoteEvent, error) {
		if e.Summary == "rejected" {
			return nil, errors.New("400 bad request")
		}
		out := *e
		out.ID = "ok-1"
		out.Updated = rfc3339(baseTime)
		return &out, nil
	}
	repo := newFakeRepo()
	svc := newTestService(t, remote, repo, newFakeMeta())
	ctx := context.Background()

	for _, title := range []string{"rejected", "accepted"} {
		if _, err := repo.Create(ctx, &model.LocalEvent{
			RemoteCalendarID: "cal",
			Title:            title,
			StartTime:        baseTime,
			EndTime:          baseTime.Add(time.Hour),
			Status:           model.EventStatusConfirmed,
			Updated:          baseTime.UnixMilli(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := svc.FullSync(ctx, "cal", FullSyncOptions{})
	if err != nil {
		t.Fatalf("full sync: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %+v, want 1", result.Errors)
	}
	unsynced, _ := repo.ListUnsyncedForCalendar(ctx, "cal")
	if len(unsynced) != 1 || unsynced[0].Title != "rejected" {
		t.Errorf("unsynced = %+v, want only the rejected event", unsynced)
	}
}

func TestSyncPushKeepsEditMadeDuringUpdate(t *testing.T) {
	remote := &fakeRemote{listEvents: singlePage("tok")}
	repo := newFakeRepo()
	svc := newTestService(t, remote, repo, newFakeMeta())
	ctx := context.Background()

	local := seedSynced(t, repo, "cal", "r1", "Planning", baseTime)
	unsynced := false
	if _, err := repo.Update(ctx, local.ID, model.EventPatch{Synced: &unsynced}); err != nil {
		t.Fatal(err)
	}

	editedAt := baseTime.Add(3 * time.Hour).UnixMilli()
	remote.updateFn = func(_, id string, e *model.RemoteEvent) (*model.RemoteEvent, error) {
		// The user saves another edit while the first one is on the wire.
		title := "Planning (moved)"
		if _, err := repo.Update(ctx, local.ID, model.EventPatch{Title: &title, Updated: &editedAt, Synced: &unsynced}); err != nil {
			return nil, err
		}
		out := *e
		out.ID = id
		out.Updated = rfc3339(baseTime.Add(time.Hour))
		return &out, nil
	}

	result, err := svc.FullSync(ctx, "cal", FullSyncOptions{})
	if err != nil {
		t.Fatalf("full sync: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %+v", result.Errors)
	}
	got := repo.get(local.ID)
	if got.Synced {
		t.Error("edit made during push was marked synced")
	}
	if got.Updated != editedAt {
		t.Errorf("updated = %d, want %d", got.Updated, editedAt)
	}
	if got.Title != "Planning (moved)" {
		t.Errorf("title = %q", got.Title)
	}

	remote.updateFn = nil
	if _, err := svc.FullSync(ctx, "cal", FullSyncOptions{}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(remote.updateCalls) != 2 || remote.updateCalls[1].Summary != "Planning (moved)" {
		t.Fatalf("update calls = %d, want the edit pushed on the next sync", len(remote.updateCalls))
	}
	got = repo.get(local.ID)
	if !got.Synced || got.Updated != editedAt {
		t.Errorf("after second push = %+v", got)
	}
}

func TestSyncPushKeepsEditMadeDuringCreate(t *testing.T) {
	remote := &fakeRemote{listEvents: singlePage("tok")}
	repo := newFakeRepo()
	svc := newTestService(t, remote, repo, newFakeMeta())
	ctx := context.Background()

	local, err := repo.Create(ctx, &model.LocalEvent{
		RemoteCalendarID: "cal",
		Title:            "Retro",
		StartTime:        baseTime,
		EndTime:          baseTime.Add(time.Hour),
		Status:           model.EventStatusConfirmed,
		Updated:          baseTime.UnixMilli(),
	})
	if err != nil {
		t.Fatal(err)
	}

	editedAt := baseTime.Add(2 * time.Hour).UnixMilli()
	remote.createFn = func(_ string, e *model.RemoteEvent) (*model.RemoteEvent, error) {
		title := "Retro (room 2)"
		if _, err := repo.Update(ctx, local.ID, model.EventPatch{Title: &title, Updated: &editedAt}); err != nil {
			return nil, err
		}
		out := *e
		out.ID = "created-1"
		out.Updated = rfc3339(baseTime.Add(time.Hour))
		return &out, nil
	}

	if _, err := svc.FullSync(ctx, "cal", FullSyncOptions{}); err != nil {
		t.Fatalf("full sync: %v", err)
	}
	got := repo.get(local.ID)
	if got.Synced || got.Updated != editedAt {
		t.Errorf("after create = synced %v updated %d, want unsynced at %d", got.Synced, got.Updated, editedAt)
	}
	if got.RemoteEventID == nil || *got.RemoteEventID != "created-1" {
		t.Fatalf("remote id = %v, want created-1", got.RemoteEventID)
	}

	if _, err := svc.FullSync(ctx, "cal", FullSyncOptions{}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(remote.createCalls) != 1 {
		t.Errorf("create calls = %d, want 1", len(remote.createCalls))
	}
	if len(remote.updateCalls) != 1 || remote.updateCalls[0].Summary != "Retro (room 2)" {
		t.Errorf("update calls = %+v, want the edit sent as an update", remote.updateCalls)
	}
}

func TestFullSyncRepeatedPageToken(t *testing.T) {
	remote := &fakeRemote{}
	remote.listEvents = func(string, model.ListEventsOptions) (*model.EventPage, error) {
		return &model.EventPage{NextPageToken: "p1"}, nil
	}
	meta := newFakeMeta()
	svc := newTestService(t, remote, newFakeRepo(), meta)

	if _, err := svc.FullSync(context.Background(), "cal", FullSyncOptions{}); err == nil {
		t.Fatal("expected error for a page token that repeats")
	}
	if len(remote.listCalls) != 2 {
		t.Errorf("list calls = %d, want 2", len(remote.listCalls))
	}
	if got := meta.snapshot().FailedSyncCount; got != 1 {
		t.Errorf("failed sync count = %d, want 1", got)
	}
}

func TestSyncAllContinuesPastFailures(t *testing.T) {
	remote := &fakeRemote{
		calendars: []model.Calendar{{ID: "a"}, {ID: "b"}},
		listEvents: func(calendarID string, _ model.ListEventsOptions) (*model.EventPage, error) {
			if calendarID == "a" {
				return nil, errors.New("boom")
			}
			return &model.EventPage{Items: []model.RemoteEvent{remoteEvent("r1", "x", baseTime)}, NextSyncToken: "tb"}, nil
		},
	}
	meta := newFakeMeta()
	svc := newTestService(t, remote, newFakeRepo(), meta)

	results, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].CalendarID != "a" || results[0].Err == "" {
		t.Errorf("first result = %+v, want failure for a", results[0])
	}
	if results[1].CalendarID != "b" || results[1].Err != "" || results[1].Added != 1 {
		t.Errorf("second result = %+v", results[1])
	}
	state := meta.snapshot()
	if state.FailedSyncCount != 1 {
		t.Errorf("failed count = %d, want 1", state.FailedSyncCount)
	}
	if state.Calendars["b"].SyncToken != "tb" {
		t.Errorf("token b = %q, want tb", state.Calendars["b"].SyncToken)
	}
	if svc.Status().Syncing {
		t.Error("syncing flag left set")
	}
}

func TestSyncAllListCalendarsError(t *testing.T) {
	remote := &fakeRemote{
		listCalendarsFn: func(context.Context) ([]model.Calendar, error) {
			return nil, errors.New("unauthorized")
		},
	}
	svc := newTestService(t, remote, newFakeRepo(), newFakeMeta())

	results, err := svc.SyncAll(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if results == nil || len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
	if svc.Status().Syncing {
		t.Error("syncing flag left set")
	}
}

func TestSyncAllSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	remote := &fakeRemote{
		listCalendarsFn: func(context.Context) ([]model.Calendar, error) {
			close(entered)
			<-release
			return []model.Calendar{{ID: "cal"}}, nil
		},
		listEvents: singlePage("tok"),
	}
	svc := newTestService(t, remote, newFakeRepo(), newFakeMeta())

	var (
		wg          sync.WaitGroup
		firstResult []*model.SyncResult
		firstErr    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstResult, firstErr = svc.SyncAll(context.Background())
	}()

	<-entered
	if !svc.Status().Syncing {
		t.Error("status should report syncing")
	}

	second, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("second sync all: %v", err)
	}
	if second == nil || len(second) != 0 {
		t.Errorf("second = %v, want empty slice", second)
	}
	_, ran, _ := svc.TrySyncAll(context.Background())
	if ran {
		t.Error("TrySyncAll ran while another sync was in flight")
	}
	if _, err := svc.SyncCalendar(context.Background(), "cal"); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("sync calendar err = %v, want ErrSyncInProgress", err)
	}
	if _, err := svc.FullSyncCalendar(context.Background(), "cal", FullSyncOptions{}); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("full sync calendar err = %v, want ErrSyncInProgress", err)
	}

	close(release)
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("first sync all: %v", firstErr)
	}
	if len(firstResult) != 1 {
		t.Errorf("first results = %d, want 1", len(firstResult))
	}
	if svc.Status().Syncing {
		t.Error("syncing flag left set")
	}

	// The guard is released once the first run returns.
	if _, ran, _ := svc.TrySyncAll(context.Background()); !ran {
		t.Error("sync all did not run after the guard was released")
	}
}

func TestSyncStatusCallback(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []model.SyncStatus
	)
	remote := &fakeRemote{calendars: []model.Calendar{{ID: "cal"}}, listEvents: singlePage("tok")}
	svc, err := New(context.Background(), Config{}, remote, newFakeRepo(), newFakeMeta(), func(s model.SyncStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SyncAll(context.Background()); err != nil {
		t.Fatalf("sync all: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) < 2 {
		t.Fatalf("callbacks = %d, want at least 2", len(statuses))
	}
	if !statuses[0].Syncing {
		t.Error("first status should report syncing")
	}
	final := statuses[len(statuses)-1]
	if final.Syncing {
		t.Error("final status should not report syncing")
	}
	if !final.HasAnyToken {
		t.Error("final status should report a stored token")
	}
	if _, ok := final.LastSyncByCalendar["cal"]; !ok {
		t.Error("final status missing calendar")
	}
}

func TestSyncMetadataSaveFailure(t *testing.T) {
	meta := newFakeMeta()
	svc := newTestService(t, &fakeRemote{listEvents: singlePage("tok")}, newFakeRepo(), meta)
	meta.saveErr = errors.New("disk full")

	if _, err := svc.FullSync(context.Background(), "cal", FullSyncOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if svc.Status().HasAnyToken {
		t.Error("in-memory state changed although the save failed")
	}
}
