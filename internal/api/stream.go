package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 25 * time.Second
)

// Stream upgrades to a websocket and pushes a state snapshot after every change.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	// A nil CheckOrigin falls back to the same-origin check.
	upgrader := websocket.Upgrader{CheckOrigin: h.CheckOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	snaps, unsubscribe := h.Diary.Subscribe()
	defer unsubscribe()
	slog.Info("stream subscriber connected", "subscriber", id)
	defer slog.Info("stream subscriber disconnected", "subscriber", id)

	// The read loop only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-snaps:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "diary closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toStateResponse(snap)); err != nil {
				slog.Debug("stream write failed", "subscriber", id, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
