package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/led-sync/internal/status"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 4096,
}

// handleWS streams the compact JSON status to the client, once immediately and then
// every pushEvery, until the client goes away or the server shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context(), s.log)

	conn, err := upgrader.Upgrade(w, r, http.Header{RequestIDHeader: {RequestID(r.Context())}})
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushEvery)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, status.FormatCompact(s.tracker.Snapshot())); err != nil {
			log.Debug("websocket write failed", "err", err)
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
