package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/lukezbihlyj/icomfort-go/internal/icomfort"
	"github.com/lukezbihlyj/icomfort-go/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
	sendBuffer = 16
)

// wsEnvelope frames every WebSocket message.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins for remote deployments
}

// wsHub fans zone updates out to every connected WebSocket client. Slow
// clients have updates dropped rather than blocking the pump's observer path.
type wsHub struct {
	log *logger.Logger

	mu    sync.Mutex
	conns map[chan wsEnvelope]struct{}
}

func newWSHub(log *logger.Logger) *wsHub {
	return &wsHub{log: log, conns: make(map[chan wsEnvelope]struct{})}
}

func (hub *wsHub) register() chan wsEnvelope {
	ch := make(chan wsEnvelope, sendBuffer)
	hub.mu.Lock()
	hub.conns[ch] = struct{}{}
	hub.mu.Unlock()
	return ch
}

func (hub *wsHub) unregister(ch chan wsEnvelope) {
	hub.mu.Lock()
	delete(hub.conns, ch)
	hub.mu.Unlock()
}

func (hub *wsHub) broadcast(env wsEnvelope) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for ch := range hub.conns {
		select {
		case ch <- env:
		default:
			// Buffer full; the client is too slow, drop this update.
		}
	}
}

// ZoneUpdated publishes one updated zone to every stream. Wired as an
// observer on the cloud client.
func (h *Handler) ZoneUpdated(zs icomfort.ZoneState) {
	h.hub.broadcast(wsEnvelope{Type: "zone", Data: zs})
}

func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorw("ws_upgrade_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine handles control frames and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates := h.hub.register()
	defer h.hub.unregister(updates)

	// Initial snapshot so a fresh client does not wait for the next update.
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: "snapshot", Data: h.services.Zones()}); err != nil {
		h.log.Infow("ws_write_failed_initial", "err", err)
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case env := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				h.log.Infow("ws_write_failed", "err", err)
				return
			}
		}
	}
}
