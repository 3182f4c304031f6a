package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/eventbus"
)

func TestHandleWSSendsInitialStateThenBusEvents(t *testing.T) {
	t.Parallel()
	s, eng := newTestServer(t)

	srv := httptest.NewServer(s)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var initial eventbus.Event
	require.NoError(t, json.Unmarshal(msg, &initial))
	require.Equal(t, eventbus.InitialState, initial.Type)

	eng.Bus.Publish(eventbus.DecayTick, map[string]int{"touched": 1})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)

	var ev eventbus.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	require.Equal(t, eventbus.DecayTick, ev.Type)
}
