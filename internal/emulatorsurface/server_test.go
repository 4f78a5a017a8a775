package emulatorsurface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/hal/emulator"
	"github.com/vfiduccia/boss/internal/halcontract"
)

func newTestServer(t *testing.T) (*httptest.Server, *emulator.HAL, *bus.Bus) {
	b := bus.New(zerolog.Nop())
	t.Cleanup(func() { b.Stop(context.Background()) })
	hal := emulator.New(b)
	s := New(b, hal, zerolog.Nop())
	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return ts, hal, b
}

func TestPressButtonEndpoint(t *testing.T) {
	ts, hal, _ := newTestServer(t)

	edges := make(chan halcontract.ButtonEdge, 1)
	hal.SubscribeButtons(func(e halcontract.ButtonEdge) { edges <- e })

	resp, err := http.Post(ts.URL+"/api/button/red/press", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])

	select {
	case e := <-edges:
		require.Equal(t, halcontract.ButtonRed, e.Button)
		require.True(t, e.Pressed)
	case <-time.After(time.Second):
		t.Fatal("expected press edge")
	}
}

func TestSetSwitchesEndpointRejectsOutOfRange(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/switches", "application/json", strings.NewReader(`{"value":999}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketSendsInitialStateThenEvents(t *testing.T) {
	ts, hal, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var initial map[string]any
	require.NoError(t, conn.ReadJSON(&initial))
	require.Equal(t, "initial_state", initial["event"])

	require.NoError(t, hal.SetLed(context.Background(), halcontract.LedRed, halcontract.LedState{On: true, Brightness: 1}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "output.led.state_changed", ev["event"])
}
