package handler

import (
	"encoding/json"
	"net/http"
	"time"

	ws "github.com/dukerupert/calsync/internal/websocket"
)

// Broadcaster fans out change notifications to connected clients.
type Broadcaster interface {
	Broadcast(msg ws.Message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseFlexibleTime accepts RFC3339 or a bare YYYY-MM-DD date (midnight UTC).
func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// optionalTime parses the query parameter key if present.
func optionalTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := parseFlexibleTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
