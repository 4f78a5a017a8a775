// Package emulatorsurface implements the Emulator Surface (C9): an
// HTTP + WebSocket debug surface, active only when the Emulator HAL
// backend is selected, that drives and observes the hardware from a
// browser. Routing follows the teacher's embedded-UI server pattern
// (server/main.go's mux of REST handlers plus a dedicated /ws upgrade
// endpoint), rebuilt on labstack/echo for routing and gorilla/websocket
// for the upgrade — both already present in the teacher's dependency
// surface.
package emulatorsurface

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/hal/emulator"
	"github.com/vfiduccia/boss/internal/halcontract"
)

//go:embed static
var staticFS embed.FS

const clientSendBuffer = 32

var forwardedTypes = map[string]bool{
	busevents.InputSwitchChanged:    true,
	busevents.InputButtonPressed:    true,
	busevents.InputButtonReleased:   true,
	busevents.OutputLedStateChanged: true,
	busevents.OutputDisplayUpdated:  true,
	busevents.OutputScreenUpdated:   true,
}

// wireMessage is the JSON shape of every message sent down the
// WebSocket, per spec §4.9.
type wireMessage struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Server is the emulator debug HTTP/WebSocket surface.
type Server struct {
	echo *echo.Echo
	bus  *bus.Bus
	hal  *emulator.HAL
	log  zerolog.Logger

	upgrader websocket.Upgrader

	httpServer *http.Server
}

// New constructs the Server and registers its routes. Call ListenAndServe
// to start accepting connections.
func New(b *bus.Bus, hal *emulator.HAL, log zerolog.Logger) *Server {
	s := &Server{
		echo: echo.New(),
		bus:  b,
		hal:  hal,
		log:  log.With().Str("component", "emulator_surface").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // loopback-only debug surface
		},
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	return s
}

func (s *Server) routes() {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // embed.FS layout is fixed at compile time
	}
	s.echo.GET("/", echo.WrapHandler(http.FileServer(http.FS(static))))
	s.echo.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	s.echo.POST("/api/button/:color/press", s.handleButton(true))
	s.echo.POST("/api/button/:color/release", s.handleButton(false))
	s.echo.POST("/api/switches", s.handleSetSwitches)
	s.echo.POST("/api/led/:color", s.handleSetLed)
	s.echo.POST("/api/display", s.handleSetDisplay)
	s.echo.POST("/api/screen", s.handleDrawText)
	s.echo.POST("/api/screen/clear", s.handleClearScreen)
	s.echo.GET("/ws", s.handleWebSocket)
}

func statusOK(c echo.Context, extra map[string]any) error {
	body := map[string]any{"status": "ok"}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(http.StatusOK, body)
}

func statusError(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"status": "error", "message": err.Error()})
}

func (s *Server) handleButton(pressed bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		color := c.Param("color")
		id := halcontract.ButtonId(color)
		switch id {
		case halcontract.ButtonRed, halcontract.ButtonYellow, halcontract.ButtonGreen, halcontract.ButtonBlue, halcontract.ButtonGo:
		default:
			return statusError(c, errInvalidButton(color))
		}
		if pressed {
			s.hal.PressButton(id)
		} else {
			s.hal.ReleaseButton(id)
		}
		return statusOK(c, nil)
	}
}

type switchesRequest struct {
	Value int `json:"value"`
}

func (s *Server) handleSetSwitches(c echo.Context) error {
	var req switchesRequest
	if err := c.Bind(&req); err != nil {
		return statusError(c, err)
	}
	if req.Value < 0 || req.Value > 255 {
		return statusError(c, errSwitchRange(req.Value))
	}
	s.hal.SetSwitches(halcontract.SwitchValue(req.Value))
	return statusOK(c, nil)
}

type ledRequest struct {
	On         bool    `json:"on"`
	Brightness float64 `json:"brightness"`
}

func (s *Server) handleSetLed(c echo.Context) error {
	color := c.Param("color")
	var req ledRequest
	if err := c.Bind(&req); err != nil {
		return statusError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 6*time.Second)
	defer cancel()
	if err := s.hal.SetLed(ctx, halcontract.LedId(color), halcontract.LedState{On: req.On, Brightness: req.Brightness}); err != nil {
		return statusError(c, err)
	}
	return statusOK(c, nil)
}

type displayRequest struct {
	Value *int `json:"value"`
}

func (s *Server) handleSetDisplay(c echo.Context) error {
	var req displayRequest
	if err := c.Bind(&req); err != nil {
		return statusError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 6*time.Second)
	defer cancel()
	if err := s.hal.SetDisplay(ctx, req.Value); err != nil {
		return statusError(c, err)
	}
	return statusOK(c, nil)
}

type screenRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleDrawText(c echo.Context) error {
	var req screenRequest
	if err := c.Bind(&req); err != nil {
		return statusError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 6*time.Second)
	defer cancel()
	if err := s.hal.DrawText(ctx, req.Content, halcontract.TextOptions{}); err != nil {
		return statusError(c, err)
	}
	return statusOK(c, nil)
}

func (s *Server) handleClearScreen(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 6*time.Second)
	defer cancel()
	if err := s.hal.ClearScreen(ctx, halcontract.Color{}); err != nil {
		return statusError(c, err)
	}
	return statusOK(c, nil)
}

// handleWebSocket upgrades the connection, sends an initial_state
// snapshot, then forwards hardware/input events until the client
// disconnects or falls behind (dropped per spec §4.9/§5).
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return err
	}

	send := make(chan wireMessage, clientSendBuffer)
	var closeOnce sync.Once
	done := make(chan struct{})
	closeConn := func() {
		closeOnce.Do(func() {
			close(done)
			conn.Close()
		})
	}

	subIDs := make([]string, 0, len(forwardedTypes))
	for eventType := range forwardedTypes {
		eventType := eventType
		id := s.bus.Subscribe(eventType, func(ev bus.Event) {
			msg := wireMessage{Event: ev.Type, Payload: ev.Payload, Timestamp: ev.Timestamp}
			select {
			case send <- msg:
			default:
				s.log.Warn().Msg("emulator client too slow, dropping connection")
				closeConn()
			}
		}, nil)
		subIDs = append(subIDs, id)
	}
	defer func() {
		for _, id := range subIDs {
			s.bus.Unsubscribe(id)
		}
	}()

	snap := s.hal.Snapshot()
	leds := make(map[string]map[string]any, len(snap.Leds))
	for id, state := range snap.Leds {
		leds[string(id)] = map[string]any{"on": state.On, "brightness": state.Brightness}
	}
	initial := wireMessage{
		Event: "initial_state",
		Payload: map[string]any{
			"leds":     leds,
			"display":  snap.Display,
			"screen":   snap.Screen,
			"switches": int(snap.Switches),
		},
		Timestamp: time.Now(),
	}
	if err := conn.WriteJSON(initial); err != nil {
		closeConn()
		return nil
	}

	go func() {
		// Drain client reads so the Gorilla connection's internal
		// control-frame handling keeps working; we don't act on
		// inbound messages (driving happens over REST).
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeConn()
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				closeConn()
				return nil
			}
		}
	}
}

// ListenAndServe starts the HTTP server on addr. It blocks until the
// server stops; call Shutdown from another goroutine to stop it.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
