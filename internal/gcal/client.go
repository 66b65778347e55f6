// Package gcal implements the remote calendar client on top of the Google
// Calendar v3 API.
package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/calsync/internal/calsync"
	"github.com/dukerupert/calsync/internal/model"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// Client adapts a calendar.Service to calsync.RemoteClient.
type Client struct {
	svc    *calendar.Service
	logger *slog.Logger
}

var _ calsync.RemoteClient = (*Client)(nil)

// NewClient wraps an authenticated calendar service.
func NewClient(svc *calendar.Service, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{svc: svc, logger: logger}
}

// ListCalendars returns every calendar on the user's calendar list.
func (c *Client) ListCalendars(ctx context.Context) ([]model.Calendar, error) {
	var out []model.Calendar
	err := c.svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			out = append(out, model.Calendar{
				ID:       item.Id,
				Summary:  item.Summary,
				Primary:  item.Primary,
				TimeZone: item.TimeZone,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", mapError(err))
	}
	return out, nil
}

// ListEvents fetches one page of events. A rejected sync token is reported
// as calsync.ErrSyncTokenGone.
func (c *Client) ListEvents(ctx context.Context, calendarID string, opts model.ListEventsOptions) (*model.EventPage, error) {
	call := c.svc.Events.List(calendarID).Context(ctx).ShowDeleted(opts.ShowDeleted)
	if opts.SyncToken != "" {
		call = call.SyncToken(opts.SyncToken)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}
	if opts.TimeMin != nil {
		call = call.TimeMin(opts.TimeMin.UTC().Format(time.RFC3339))
	}
	if opts.TimeMax != nil {
		call = call.TimeMax(opts.TimeMax.UTC().Format(time.RFC3339))
	}
	if opts.MaxResults > 0 {
		call = call.MaxResults(opts.MaxResults)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapError(err)
	}

	page := &model.EventPage{
		Items:         make([]model.RemoteEvent, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}
	for _, item := range resp.Items {
		ev, err := fromAPI(item)
		if err != nil {
			// Keep the event; the reconciler reports anything unusable.
			c.logger.Warn("decode event extras", "calendar", calendarID, "event", item.Id, "error", err)
		}
		page.Items = append(page.Items, ev)
	}
	c.logger.Debug("listed events", "calendar", calendarID, "items", len(page.Items), "more", page.NextPageToken != "")
	return page, nil
}

// CreateEvent inserts a new event and returns the stored copy.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, event *model.RemoteEvent) (*model.RemoteEvent, error) {
	body, err := toAPI(event)
	if err != nil {
		return nil, err
	}
	body.Id = ""
	created, err := c.svc.Events.Insert(calendarID, body).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	out, err := fromAPI(created)
	if err != nil {
		c.logger.Warn("decode created event extras", "calendar", calendarID, "event", created.Id, "error", err)
	}
	return &out, nil
}

// UpdateEvent replaces an existing event and returns the stored copy.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, remoteEventID string, event *model.RemoteEvent) (*model.RemoteEvent, error) {
	body, err := toAPI(event)
	if err != nil {
		return nil, err
	}
	saved, err := c.svc.Events.Update(calendarID, remoteEventID, body).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	out, err := fromAPI(saved)
	if err != nil {
		c.logger.Warn("decode updated event extras", "calendar", calendarID, "event", saved.Id, "error", err)
	}
	return &out, nil
}

func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusGone {
		return fmt.Errorf("%w: %v", calsync.ErrSyncTokenGone, err)
	}
	return err
}

func fromAPI(e *calendar.Event) (model.RemoteEvent, error) {
	out := model.RemoteEvent{
		ID:          e.Id,
		Status:      model.EventStatus(e.Status),
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       fromAPITime(e.Start),
		End:         fromAPITime(e.End),
		Updated:     e.Updated,
	}

	var errs []error
	if len(e.Attendees) > 0 {
		raw, err := json.Marshal(e.Attendees)
		errs = append(errs, err)
		out.Attendees = raw
	}
	if e.Reminders != nil {
		raw, err := json.Marshal(e.Reminders)
		errs = append(errs, err)
		out.Reminders = raw
	}
	if len(e.Recurrence) > 0 {
		raw, err := json.Marshal(e.Recurrence)
		errs = append(errs, err)
		out.Recurrence = raw
	}
	return out, errors.Join(errs...)
}

func toAPI(e *model.RemoteEvent) (*calendar.Event, error) {
	out := &calendar.Event{
		Id:          e.ID,
		Status:      string(e.Status),
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       toAPITime(e.Start),
		End:         toAPITime(e.End),
	}
	if len(e.Attendees) > 0 {
		if err := json.Unmarshal(e.Attendees, &out.Attendees); err != nil {
			return nil, fmt.Errorf("decode attendees: %w", err)
		}
	}
	if len(e.Reminders) > 0 {
		out.Reminders = &calendar.EventReminders{}
		if err := json.Unmarshal(e.Reminders, out.Reminders); err != nil {
			return nil, fmt.Errorf("decode reminders: %w", err)
		}
	}
	if len(e.Recurrence) > 0 {
		if err := json.Unmarshal(e.Recurrence, &out.Recurrence); err != nil {
			return nil, fmt.Errorf("decode recurrence: %w", err)
		}
	}
	return out, nil
}

func fromAPITime(t *calendar.EventDateTime) *model.EventDateTime {
	if t == nil {
		return nil
	}
	return &model.EventDateTime{Date: t.Date, DateTime: t.DateTime, TimeZone: t.TimeZone}
}

func toAPITime(t *model.EventDateTime) *calendar.EventDateTime {
	if t == nil {
		return nil
	}
	return &calendar.EventDateTime{Date: t.Date, DateTime: t.DateTime, TimeZone: t.TimeZone}
}
