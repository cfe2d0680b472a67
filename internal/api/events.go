package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events handles GET /v1/sessions/{id}/events: a WebSocket pushing session
// state transitions until the client disconnects or the session closes.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	entry, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := entry.Subscribe()
	defer unsubscribe()

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current state first so subscribers need no separate GET.
	if err := conn.WriteJSON(entry.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
