package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

// SSE serves the change stream as Server-Sent Events.
type SSE struct {
	broadcaster *Broadcaster
	keepalive   time.Duration
	logger      Logger
}

// NewSSE creates an SSE transport for b. Idle streams receive a comment line
// every keepalive.
func NewSSE(b *Broadcaster, keepalive time.Duration) *SSE {
	if keepalive <= 0 {
		keepalive = defaultPingInterval
	}
	return &SSE{broadcaster: b, keepalive: keepalive, logger: noopLogger{}}
}

// SetLogger sets the logger for the transport.
func (t *SSE) SetLogger(logger Logger) {
	t.logger = logger
}

// Serve streams events until the client disconnects or a write fails.
func (t *SSE) Serve(w http.ResponseWriter, r *http.Request, kinds ...device.Kind) {
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	//nolint:errcheck // Not every writer supports deadlines
	rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		t.logger.Warn("sse flush unsupported", "error", err)
		return
	}

	sub := t.broadcaster.Subscribe(kinds...)
	defer t.broadcaster.Unsubscribe(sub)
	t.logger.Debug("sse client connected", "subscriber", sub.ID(), "remote", r.RemoteAddr)

	ticker := time.NewTicker(t.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				t.logger.Warn("marshalling stream event", "type", e.Type(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type(), data); err != nil {
				t.logger.Debug("sse write failed", "subscriber", sub.ID(), "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
