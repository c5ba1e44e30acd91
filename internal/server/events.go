package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"iconstudio/internal/patch"
)

const (
	eventsWSWriteWait = 10 * time.Second
	eventsWSPongWait  = 60 * time.Second
	eventsWSPingEvery = (eventsWSPongWait * 9) / 10
)

var eventsWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type eventsWSOutbound struct {
	Type  string       `json:"type"`
	DocID string       `json:"docId,omitempty"`
	Event *patch.Event `json:"event,omitempty"`
}

// Events streams patch workflow transitions and commits for one document.
// Clients only read; anything they send is discarded.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if _, err := h.svc.Document(r.Context(), docID); err != nil {
		h.writeError(w, err, nil)
		return
	}

	conn, err := eventsWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(eventsWSPongWait)); err != nil {
		h.log.Printf("events ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsWSPongWait))
	})

	// the read loop only exists to notice the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := h.svc.Subscribe(ctx, docID)
	if err := writeWS(conn, eventsWSOutbound{Type: "subscribed", DocID: docID}); err != nil {
		return
	}

	ticker := time.NewTicker(eventsWSPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeWS(conn, eventsWSOutbound{Type: "event", DocID: docID, Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, out eventsWSOutbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(out)
}
