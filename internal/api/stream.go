package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/punchamoorthee/vrfmint/internal/event"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamEventsHandler serves the event feed from ?from=N (default 0).
// A websocket client receives history then live events; a plain GET gets the
// current history as JSON.
func (h *Handler) StreamEventsHandler(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if s := r.URL.Query().Get("from"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid from offset", "GET", "/events")
			return
		}
		from = v
	}

	if !websocket.IsWebSocketUpgrade(r) {
		events := h.feed.Since(from)
		if events == nil {
			events = []event.Event{}
		}
		h.respondJSON(w, http.StatusOK, events, "GET", "/events")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		httpRequestsTotal.WithLabelValues("GET", "/events", "400").Inc()
		return
	}
	httpRequestsTotal.WithLabelValues("GET", "/events", "101").Inc()
	defer conn.Close()

	subId, events := h.feed.Subscribe(from)
	defer h.feed.Unsubscribe(subId)

	// the read pump only notices the client going away
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				h.log.WithError(err).Debug("event stream write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
