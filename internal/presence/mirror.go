package presence

import (
	"context"
	"time"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/heartbeat"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/influxdb"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/mqtt"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/stream"
)

// Source hands out subscriptions to registry events.
type Source interface {
	Subscribe(kinds ...device.Kind) *stream.Subscriber
	Unsubscribe(sub *stream.Subscriber)
}

// MQTTPublisher is the subset of the MQTT client the mirror uses.
type MQTTPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
}

// InfluxWriter is the subset of the InfluxDB client the mirror uses.
type InfluxWriter interface {
	WritePresence(p influxdb.Presence)
	WriteProbe(p influxdb.Probe)
}

// MQTTMirror keeps one retained message per device on
// <prefix>/presence/<kind>/<mac> and clears it when the device is removed.
type MQTTMirror struct {
	source    Source
	publisher MQTTPublisher
	topics    mqtt.Topics
	logger    Logger
}

// NewMQTTMirror creates a mirror publishing under topics.
func NewMQTTMirror(source Source, publisher MQTTPublisher, topics mqtt.Topics) *MQTTMirror {
	return &MQTTMirror{source: source, publisher: publisher, topics: topics, logger: noopLogger{}}
}

// SetLogger sets the logger for the mirror.
func (m *MQTTMirror) SetLogger(logger Logger) {
	m.logger = logger
}

// Run mirrors events until ctx is cancelled or the source closes.
func (m *MQTTMirror) Run(ctx context.Context) {
	consume(ctx, m.source, m.apply)
}

func (m *MQTTMirror) apply(e device.Event) {
	topic := m.topics.Presence(string(e.Device.Kind), e.Device.MAC)
	var err error
	if e.Kind == device.EventRemoved {
		err = m.publisher.ClearRetained(topic)
	} else {
		err = m.publisher.PublishJSON(topic, e.Device, true)
	}
	if err != nil {
		m.logger.Warn("mirroring presence to mqtt", "topic", topic, "event", e.Type(), "error", err)
	}
}

// InfluxMirror writes presence changes and probe outcomes as points.
// It implements heartbeat.Observer for the probe side.
type InfluxMirror struct {
	source Source
	writer InfluxWriter
}

// NewInfluxMirror creates a mirror writing through writer.
func NewInfluxMirror(source Source, writer InfluxWriter) *InfluxMirror {
	return &InfluxMirror{source: source, writer: writer}
}

// Run mirrors events until ctx is cancelled or the source closes.
func (m *InfluxMirror) Run(ctx context.Context) {
	consume(ctx, m.source, m.apply)
}

func (m *InfluxMirror) apply(e device.Event) {
	if e.Kind == device.EventRemoved {
		return
	}
	m.writer.WritePresence(influxdb.Presence{
		Kind:      string(e.Device.Kind),
		MAC:       e.Device.MAC,
		Hostname:  e.Device.Hostname,
		IP:        e.Device.IPAddress,
		Connected: e.Device.Connected(),
		Time:      e.Time,
	})
}

// ProbeCompleted implements heartbeat.Observer.
func (m *InfluxMirror) ProbeCompleted(kind device.Kind, mac string, r heartbeat.Result) {
	m.writer.WriteProbe(influxdb.Probe{
		Kind:      string(kind),
		MAC:       mac,
		Method:    string(r.Method),
		Reachable: r.Reachable,
		Latency:   r.Latency,
		Time:      time.Now(),
	})
}

// CycleCompleted implements heartbeat.Observer.
func (m *InfluxMirror) CycleCompleted(device.Kind, int, time.Duration) {}

// consume drains a fresh subscription into apply.
func consume(ctx context.Context, source Source, apply func(device.Event)) {
	sub := source.Subscribe()
	defer source.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			apply(e)
		}
	}
}
