package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/caredesk/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// HubOptions configures a Hub.
type HubOptions struct {
	Logger logging.Logger
	// CheckOrigin overrides the websocket origin policy. Nil allows any origin.
	CheckOrigin func(r *http.Request) bool
	Buffer      int
}

// Hub streams bus events to websocket clients as JSON text frames.
type Hub struct {
	bus      *Bus
	upgrader websocket.Upgrader
	buffer   int
	logger   logging.Logger
}

// NewHub returns a Hub reading from bus.
func NewHub(bus *Bus, optFns ...func(o *HubOptions)) *Hub {
	opts := HubOptions{Logger: logging.NoOpLogger{}, Buffer: 64}
	for _, fn := range optFns {
		fn(&opts)
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		buffer: opts.Buffer,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away or the bus closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, cancel := h.bus.Subscribe(h.buffer)
	defer cancel()

	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go h.readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed.
func (h *Hub) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
