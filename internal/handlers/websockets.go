package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pvs_monitor/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 30 * time.Second
	maxInterval      = 10 * time.Minute
	maxIntervalMilli = 600_000
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins once the dashboard host is fixed
}

// wsConnect streams the device list: once on connect, after every poll, and again every
// interval so idle clients can detect a stalled scheduler.
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	var updates <-chan models.Snapshot
	if h.services.Polling != nil {
		ch, unsubscribe := h.services.Polling.Subscribe()
		defer unsubscribe()
		updates = ch
	}

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	if err := h.sendDevices(ctx, conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-updates:
			if err := h.sendDevices(ctx, conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendDevices(ctx, conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=45s or ?interval_ms=45000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

func (h *Handler) sendDevices(ctx context.Context, conn *websocket.Conn) error {
	devices, err := h.services.Monitoring.Devices(ctx, "")
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_devices_failed", "err", err)
		}
		return err
	}
	snap := h.services.Monitoring.Snapshot()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "devices", Data: DevicesResponse{
		Available: snap.Available,
		UpdatedAt: snap.UpdatedAt,
		Count:     len(devices),
		Devices:   devices,
	}})
}
