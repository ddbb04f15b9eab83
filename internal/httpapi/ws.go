package httpapi

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/kurek775/saladin/internal/broadcast"
)

// WSHandler upgrades /ws connections and registers each as a subscriber on
// the broadcast fabric, sending a ping frame on heartbeatInterval to keep
// idle connections (and intermediate proxies) alive.
type WSHandler struct {
	fabric            *broadcast.Fabric
	heartbeatInterval time.Duration
}

func NewWSHandler(fabric *broadcast.Fabric, heartbeatInterval time.Duration) *WSHandler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &WSHandler{fabric: fabric, heartbeatInterval: heartbeatInterval}
}

// Upgrade rejects non-WebSocket requests before Stream runs, the standard
// gofiber/contrib/websocket pairing.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream runs the connection's lifetime: it subscribes to the fabric,
// forwards pings, and reads (and discards) client frames only to detect
// disconnects, since the wire protocol here is server-to-client only.
//
// GET /ws
func (h *WSHandler) Stream(c *websocket.Conn) {
	sub := &wsSubscriber{conn: c}
	h.fabric.Subscribe(sub)
	defer h.fabric.Unsubscribe(sub)

	stop := make(chan struct{})
	go h.heartbeat(sub, stop)
	defer close(stop)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) heartbeat(sub *wsSubscriber, stop chan struct{}) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := sub.ping(); err != nil {
				return
			}
		}
	}
}

// wsSubscriber adapts *websocket.Conn to broadcast.Subscriber. Fiber's
// websocket connections aren't safe for concurrent writes, so every write —
// event payload or ping — goes through writeMu.
type wsSubscriber struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSubscriber) Send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSubscriber) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}
