package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPresence = "device_presence"
	MeasurementProbe    = "device_probe"
)

// Presence is one device presence change.
type Presence struct {
	Kind      string
	MAC       string
	Hostname  string
	IP        string
	Connected bool
	// Time defaults to now when zero.
	Time time.Time
}

// Probe is the outcome of one heartbeat probe.
type Probe struct {
	Kind      string
	MAC       string
	Method    string
	Reachable bool
	Latency   time.Duration
	Time      time.Time
}

// presencePoint converts p to a line-protocol point.
func presencePoint(p Presence) *write.Point {
	return write.NewPoint(
		MeasurementPresence,
		map[string]string{
			"kind": p.Kind,
			"mac":  p.MAC,
		},
		map[string]interface{}{
			"connected":  p.Connected,
			"hostname":   p.Hostname,
			"ip_address": p.IP,
		},
		timestampOrNow(p.Time),
	)
}

// probePoint converts p to a line-protocol point.
func probePoint(p Probe) *write.Point {
	return write.NewPoint(
		MeasurementProbe,
		map[string]string{
			"kind":   p.Kind,
			"mac":    p.MAC,
			"method": p.Method,
		},
		map[string]interface{}{
			"reachable":  p.Reachable,
			"latency_ms": float64(p.Latency) / float64(time.Millisecond),
		},
		timestampOrNow(p.Time),
	)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// WritePresence queues a presence point. Non-blocking.
func (c *Client) WritePresence(p Presence) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(presencePoint(p))
}

// WriteProbe queues a probe result point. Non-blocking.
func (c *Client) WriteProbe(p Probe) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(probePoint(p))
}
