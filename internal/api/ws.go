package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cortexmem/cortex/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// handleWS upgrades to a WebSocket, sends an initial_state frame
// summarizing current stats, then streams every subsequent bus event
// verbatim until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.eng.Bus.Subscribe()
	defer unsubscribe()

	stats, err := s.eng.Stats(r.Context(), s.eng.ProjectPtr())
	if err == nil {
		_ = writeEvent(conn, eventbus.Event{
			Type: eventbus.InitialState, Timestamp: time.Now().UTC(), Data: stats,
		})
	}

	// Drain client-initiated control frames (pings, close) on a reader
	// goroutine so a dead connection is detected promptly.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev eventbus.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
