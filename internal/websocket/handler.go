package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients. An empty originPatterns accepts any origin.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	opts := &ws.AcceptOptions{
		OriginPatterns:     originPatterns,
		InsecureSkipVerify: len(originPatterns) == 0,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			logger.Warn("websocket accept", "remote", r.RemoteAddr, "error", err)
			return
		}

		logger.Debug("websocket connected", "remote", r.RemoteAddr)
		client := NewClient(hub, conn)
		client.Run(r.Context())
		logger.Debug("websocket disconnected", "remote", r.RemoteAddr)
	}
}
