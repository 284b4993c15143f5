package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/heartbeat"
)

const namespace = "pumaguard"

// Metrics holds every collector and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	dhcpEvents        *prometheus.CounterVec
	probes            *prometheus.CounterVec
	probeLatency      *prometheus.HistogramVec
	cycleDuration     *prometheus.HistogramVec
	cycleDevices      *prometheus.GaugeVec
	retentionRemoved  *prometheus.CounterVec
	streamDropped     prometheus.Counter
	streamSubscribers prometheus.Gauge
	plugCommands      *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dhcpEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dhcp",
			Name:      "events_total",
			Help:      "DHCP lease events by action and outcome.",
		}, []string{"action", "outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "probes_total",
			Help:      "Liveness probes by device kind, method and result.",
		}, []string{"kind", "method", "result"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "probe_latency_seconds",
			Help:      "Round trip time of successful probes.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"kind", "method"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a complete probe cycle including the retention sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		cycleDevices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "cycle_devices",
			Help:      "Devices probed in the last cycle.",
		}, []string{"kind"}),
		retentionRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "removed_total",
			Help:      "Devices removed for inactivity.",
		}, []string{"kind"}),
		streamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_events_total",
			Help:      "Events discarded because a subscriber queue was full.",
		}),
		streamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Connected change stream subscribers.",
		}),
		plugCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plug",
			Name:      "commands_total",
			Help:      "Plug switch commands by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dhcpEvents,
		m.probes,
		m.probeLatency,
		m.cycleDuration,
		m.cycleDevices,
		m.retentionRemoved,
		m.streamDropped,
		m.streamSubscribers,
		m.plugCommands,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchDevices registers gauges computed from stats on every scrape.
func (m *Metrics) WatchDevices(stats func() device.Stats) {
	m.registry.MustRegister(newDeviceCollector(stats))
}

// DHCPEvent counts one ingested lease event.
func (m *Metrics) DHCPEvent(action, outcome string) {
	m.dhcpEvents.WithLabelValues(action, outcome).Inc()
}

// ProbeCompleted records one probe outcome.
func (m *Metrics) ProbeCompleted(kind device.Kind, _ string, r heartbeat.Result) {
	result := "unreachable"
	if r.Reachable {
		result = "reachable"
		m.probeLatency.WithLabelValues(string(kind), string(r.Method)).Observe(r.Latency.Seconds())
	}
	m.probes.WithLabelValues(string(kind), string(r.Method), result).Inc()
}

// CycleCompleted records one finished probe cycle.
func (m *Metrics) CycleCompleted(kind device.Kind, devices int, elapsed time.Duration) {
	m.cycleDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	m.cycleDevices.WithLabelValues(string(kind)).Set(float64(devices))
}

// RetentionRemoved counts devices removed by a sweep.
func (m *Metrics) RetentionRemoved(kind device.Kind, count int) {
	m.retentionRemoved.WithLabelValues(string(kind)).Add(float64(count))
}

// StreamDropped counts one event dropped for a slow subscriber.
func (m *Metrics) StreamDropped() {
	m.streamDropped.Inc()
}

// StreamSubscribers sets the current subscriber count.
func (m *Metrics) StreamSubscribers(n int) {
	m.streamSubscribers.Set(float64(n))
}

// PlugCommand counts one switch command.
func (m *Metrics) PlugCommand(outcome string) {
	m.plugCommands.WithLabelValues(outcome).Inc()
}

// deviceCollector reports registry counts at scrape time.
type deviceCollector struct {
	stats     func() device.Stats
	total     *prometheus.Desc
	connected *prometheus.Desc
	history   *prometheus.Desc
}

func newDeviceCollector(stats func() device.Stats) *deviceCollector {
	return &deviceCollector{
		stats: stats,
		total: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "devices", "known"),
			"Devices in the registry by kind.",
			[]string{"kind"}, nil,
		),
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "devices", "connected"),
			"Connected devices by kind.",
			[]string{"kind"}, nil,
		),
		history: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "devices", "history_entries"),
			"Identity history entries.",
			nil, nil,
		),
	}
}

func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.connected
	ch <- c.history
}

func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, kind := range device.Kinds() {
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.ByKind[kind]), string(kind))
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, float64(s.Connected[kind]), string(kind))
	}
	ch <- prometheus.MustNewConstMetric(c.history, prometheus.GaugeValue, float64(s.History))
}
