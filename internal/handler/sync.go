package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/calsync/internal/calsync"
	"github.com/dukerupert/calsync/internal/model"
)

// SyncService is the part of calsync.Service exposed over HTTP.
type SyncService interface {
	Status() model.SyncStatus
	TrySyncAll(ctx context.Context) ([]*model.SyncResult, bool, error)
	SyncCalendar(ctx context.Context, calendarID string) (*model.SyncResult, error)
	FullSyncCalendar(ctx context.Context, calendarID string, opts calsync.FullSyncOptions) (*model.SyncResult, error)
}

type SyncHandler struct {
	svc    SyncService
	logger *slog.Logger
}

func NewSyncHandler(svc SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{svc: svc, logger: logger}
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// SyncAll runs an incremental sync of every calendar. Syncs outlive the
// request: a client hanging up does not abort them.
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	results, ran, err := h.svc.TrySyncAll(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Error("sync all", "error", err)
		writeError(w, http.StatusBadGateway, "failed to list calendars")
		return
	}
	if !ran {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "sync already in progress",
			"results": results,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *SyncHandler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.svc.SyncCalendar(context.WithoutCancel(r.Context()), id)
	h.writeResult(w, id, result, err)
}

func (h *SyncHandler) FullSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var opts calsync.FullSyncOptions
	var err error
	if opts.TimeMin, err = optionalTime(r, "time_min"); err != nil {
		writeError(w, http.StatusBadRequest, "time_min must be RFC3339 or YYYY-MM-DD format")
		return
	}
	if opts.TimeMax, err = optionalTime(r, "time_max"); err != nil {
		writeError(w, http.StatusBadRequest, "time_max must be RFC3339 or YYYY-MM-DD format")
		return
	}
	if opts.TimeMin != nil && opts.TimeMax != nil && !opts.TimeMin.Before(*opts.TimeMax) {
		writeError(w, http.StatusBadRequest, "time_min must be before time_max")
		return
	}

	result, err := h.svc.FullSyncCalendar(context.WithoutCancel(r.Context()), id, opts)
	h.writeResult(w, id, result, err)
}

func (h *SyncHandler) writeResult(w http.ResponseWriter, calendarID string, result *model.SyncResult, err error) {
	switch {
	case errors.Is(err, calsync.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync already in progress")
	case err != nil:
		h.logger.Error("calendar sync", "calendar", calendarID, "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
