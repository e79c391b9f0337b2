package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/templui/accountable/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Subscriber is the part of events.Bus the realtime endpoint needs.
type Subscriber interface {
	Subscribe(filter events.Filter) (<-chan events.Event, func())
}

// RealtimeHandler streams the signed-in user's events over a websocket.
type RealtimeHandler struct {
	bus      Subscriber
	upgrader websocket.Upgrader
}

// NewRealtimeHandler only accepts upgrades from appURL's origin.
func NewRealtimeHandler(bus Subscriber, appURL string) *RealtimeHandler {
	allowed := ""
	if u, err := url.Parse(appURL); err == nil {
		allowed = u.Host
	}

	return &RealtimeHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && (u.Host == r.Host || u.Host == allowed)
			},
		},
	}
}

func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		slog.Warn("websocket upgrade failed", "error", err, "user_id", uid)
		return
	}

	ch, cancel := h.bus.Subscribe(events.ForUser(uid))
	defer cancel()

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		closeErr := conn.Close()
		if closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	slog.Debug("realtime subscriber connected", "user_id", uid)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteJSON(e)
			if err != nil {
				slog.Debug("realtime write failed", "error", err, "user_id", uid)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}

		case <-closed:
			slog.Debug("realtime subscriber disconnected", "user_id", uid)
			return

		case <-r.Context().Done():
			return
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *RealtimeHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
	}
}
