package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"mount_modeling/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000
)

// Envelope types on the stream.
const (
	wsTypeState = "state"
	wsTypeLog   = "log"
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// wsState is one tick of the stream: mount telemetry plus run progress.
type wsState struct {
	Mount    models.MountStatus `json:"mount"`
	Progress models.Progress    `json:"progress"`
	Status   string             `json:"status"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// @Summary      Live stream
// @Description  WebSocket. Every tick sends {"type":"state"} with mount status and run progress, followed by {"type":"log"} with model log lines added since the last tick.
// @Tags         system
// @Param        interval     query  string  false  "Tick as Go duration, up to 10s"  example(500ms)
// @Param        interval_ms  query  int     false  "Tick in milliseconds, up to 10000"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

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

	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	var lastLine string
	if lastLine, err = h.sendTick(c.Request.Context(), conn, lastLine); err != nil {
		h.log.Infow("ws_write_failed_initial", "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if lastLine, err = h.sendTick(c.Request.Context(), conn, lastLine); err != nil {
				h.log.Infow("ws_write_failed", "err", err)
				return
			}
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	interval := defaultInterval

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

	return interval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}

// sendTick writes the state envelope and any log lines after lastLine. It
// returns the newest line sent.
func (h *Handler) sendTick(ctx context.Context, conn *websocket.Conn, lastLine string) (string, error) {
	st, err := h.services.Monitoring.GetStatus(ctx)
	if err != nil {
		h.log.Errorw("ws_get_status_failed", "err", err)
		return lastLine, err
	}
	p := h.services.Modeling.Progress()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: wsTypeState, Data: wsState{Mount: st, Progress: p, Status: p.Status()}}); err != nil {
		return lastLine, err
	}

	fresh := linesAfter(h.services.Modeling.ModelLog(), lastLine)
	if len(fresh) == 0 {
		return lastLine, nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: wsTypeLog, Data: fresh}); err != nil {
		return lastLine, err
	}
	return fresh[len(fresh)-1], nil
}

// linesAfter returns the lines following the last occurrence of last. When
// last has scrolled out of the ring every line is new.
func linesAfter(lines []string, last string) []string {
	if last == "" {
		return lines
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] == last {
			return lines[i+1:]
		}
	}
	return lines
}
