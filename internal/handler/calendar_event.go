package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/calsync/internal/model"
	"github.com/dukerupert/calsync/internal/store"
	ws "github.com/dukerupert/calsync/internal/websocket"
)

// EventStore is the local event storage the handler edits.
type EventStore interface {
	Create(ctx context.Context, e *model.LocalEvent) (*model.LocalEvent, error)
	GetByID(ctx context.Context, id string) (*model.LocalEvent, error)
	Update(ctx context.Context, id string, patch model.EventPatch) (*model.LocalEvent, error)
	ListByDateRange(ctx context.Context, calendarID string, start, end time.Time) ([]model.LocalEvent, error)
}

// CalendarEventHandler serves local events. Every write marks the event
// unsynced so the next sync pushes it.
type CalendarEventHandler struct {
	events EventStore
	hub    Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

func NewCalendarEventHandler(es EventStore, hub Broadcaster, logger *slog.Logger) *CalendarEventHandler {
	return &CalendarEventHandler{events: es, hub: hub, logger: logger, now: time.Now}
}

type eventRequest struct {
	CalendarID  string            `json:"calendar_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Location    string            `json:"location"`
	StartTime   string            `json:"start_time"`
	EndTime     string            `json:"end_time"`
	AllDay      bool              `json:"all_day"`
	Status      model.EventStatus `json:"status"`
}

type parsedEvent struct {
	eventRequest
	start time.Time
	end   time.Time
}

func (h *CalendarEventHandler) parseAndValidate(r *http.Request, w http.ResponseWriter) (*parsedEvent, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return nil, false
	}

	switch req.Status {
	case "":
		req.Status = model.EventStatusConfirmed
	case model.EventStatusConfirmed, model.EventStatusTentative:
	default:
		writeError(w, http.StatusBadRequest, "status must be confirmed or tentative")
		return nil, false
	}

	start, err := parseFlexibleTime(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_time must be RFC3339 or YYYY-MM-DD format")
		return nil, false
	}
	end, err := parseFlexibleTime(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_time must be RFC3339 or YYYY-MM-DD format")
		return nil, false
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start_time must be before end_time")
		return nil, false
	}

	return &parsedEvent{eventRequest: req, start: start, end: end}, true
}

func (h *CalendarEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}
	if req.CalendarID = strings.TrimSpace(req.CalendarID); req.CalendarID == "" {
		writeError(w, http.StatusBadRequest, "calendar_id is required")
		return
	}

	event, err := h.events.Create(r.Context(), &model.LocalEvent{
		RemoteCalendarID: req.CalendarID,
		Title:            req.Title,
		Description:      req.Description,
		Location:         req.Location,
		StartTime:        req.start,
		EndTime:          req.end,
		AllDay:           req.AllDay,
		Status:           req.Status,
		Updated:          h.now().UnixMilli(),
		Synced:           false,
	})
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.hub.Broadcast(ws.NewMessage("event", "created", event.ID, map[string]any{"calendar_id": event.RemoteCalendarID}))
	writeJSON(w, http.StatusCreated, event)
}

func (h *CalendarEventHandler) List(w http.ResponseWriter, r *http.Request) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "start and end query parameters are required")
		return
	}

	start, err := parseFlexibleTime(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD format")
		return
	}
	end, err := parseFlexibleTime(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD format")
		return
	}

	events, err := h.events.ListByDateRange(r.Context(), r.URL.Query().Get("calendar_id"), start, end)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.LocalEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *CalendarEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Update replaces the editable fields of an event. The new Updated stamp is
// kept ahead of the previous one so the edit wins the next conflict check.
func (h *CalendarEventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	req, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}
	if req.CalendarID != "" && req.CalendarID != existing.RemoteCalendarID {
		writeError(w, http.StatusBadRequest, "events cannot move between calendars")
		return
	}

	updated := max(h.now().UnixMilli(), existing.Updated+1)
	synced := false
	event, err := h.events.Update(r.Context(), id, model.EventPatch{
		Title:       &req.Title,
		Description: &req.Description,
		Location:    &req.Location,
		StartTime:   &req.start,
		EndTime:     &req.end,
		AllDay:      &req.AllDay,
		Status:      &req.Status,
		Updated:     &updated,
		Synced:      &synced,
		IfUpdated:   &existing.Updated,
	})
	if errors.Is(err, store.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if errors.Is(err, model.ErrEventChanged) {
		writeError(w, http.StatusConflict, "event changed, reload and retry")
		return
	}
	if err != nil {
		h.logger.Error("update event", "event", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	h.hub.Broadcast(ws.NewMessage("event", "updated", event.ID, map[string]any{"calendar_id": event.RemoteCalendarID}))
	writeJSON(w, http.StatusOK, event)
}
