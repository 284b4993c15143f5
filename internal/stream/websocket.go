package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/config"
)

// WebSocket defaults used when the config leaves a value at zero.
const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// WebSocket serves the change stream over WebSocket connections.
type WebSocket struct {
	broadcaster  *Broadcaster
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongWait     time.Duration
	readLimit    int64
	logger       Logger
}

// NewWebSocket creates a WebSocket transport for b.
func NewWebSocket(b *Broadcaster, cfg config.WebSocketConfig) *WebSocket {
	t := &WebSocket{
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Origin checking is handled by CORS middleware
				return true
			},
		},
		pingInterval: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:     time.Duration(cfg.PongTimeout) * time.Second,
		readLimit:    int64(cfg.MaxMessageSize),
		logger:       noopLogger{},
	}
	if t.pingInterval <= 0 {
		t.pingInterval = defaultPingInterval
	}
	if t.pongWait <= 0 {
		t.pongWait = defaultPongTimeout
	}
	if t.readLimit <= 0 {
		t.readLimit = defaultMaxMessageSize
	}
	return t
}

// SetLogger sets the logger for the transport.
func (t *WebSocket) SetLogger(logger Logger) {
	t.logger = logger
}

// Serve upgrades the request and streams events until the client goes away.
// It returns as soon as the connection is set up.
func (t *WebSocket) Serve(w http.ResponseWriter, r *http.Request, kinds ...device.Kind) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := t.broadcaster.Subscribe(kinds...)
	t.logger.Debug("websocket client connected", "subscriber", sub.ID(), "remote", r.RemoteAddr)

	c := &wsClient{transport: t, conn: conn, sub: sub}
	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	transport *WebSocket
	conn      *websocket.Conn
	sub       *Subscriber
}

// readPump consumes client frames so pongs and close frames are processed.
// Inbound messages carry no meaning; any of them extends the read deadline.
func (c *wsClient) readPump() {
	t := c.transport
	defer func() {
		t.broadcaster.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	deadline := t.pingInterval + t.pongWait
	c.conn.SetReadLimit(t.readLimit)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("websocket read error", "subscriber", c.sub.ID(), "error", err)
			} else {
				t.logger.Debug("websocket closed", "subscriber", c.sub.ID(), "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
	}
}

// writePump is the only writer on the connection. A failed write ends it and
// closes the connection, which in turn ends readPump and unsubscribes.
func (c *wsClient) writePump() {
	t := c.transport
	ticker := time.NewTicker(t.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.sub.Events():
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				t.logger.Warn("marshalling stream event", "type", e.Type(), "error", err)
				continue
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logger.Debug("websocket write failed", "subscriber", c.sub.ID(), "error", err)
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
