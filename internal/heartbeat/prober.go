package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
)

const (
	// DefaultConcurrency bounds simultaneous probes within one cycle.
	DefaultConcurrency = 4

	// fallbackInterval is used when settings carry no usable interval.
	fallbackInterval = 60 * time.Second
)

// Registry is the subset of the device registry the prober needs.
type Registry interface {
	ListByKind(kind device.Kind) []device.Device
	Upsert(ctx context.Context, mac string, u device.Update) (device.Device, error)
}

// Settings provides the live heartbeat and retention settings.
type Settings interface {
	Get(kind device.Kind) (settings.Kind, error)
}

// Sweeper removes stale devices from a snapshot.
type Sweeper interface {
	Sweep(ctx context.Context, devices []device.Device, enabled bool, thresholdHours int) []device.Device
}

// Observer receives probe outcomes. Implementations must not block.
type Observer interface {
	ProbeCompleted(kind device.Kind, mac string, r Result)
	CycleCompleted(kind device.Kind, devices int, elapsed time.Duration)
}

// Observers fans out to several observers.
type Observers []Observer

// ProbeCompleted implements Observer.
func (o Observers) ProbeCompleted(kind device.Kind, mac string, r Result) {
	for _, obs := range o {
		obs.ProbeCompleted(kind, mac, r)
	}
}

// CycleCompleted implements Observer.
func (o Observers) CycleCompleted(kind device.Kind, devices int, elapsed time.Duration) {
	for _, obs := range o {
		obs.CycleCompleted(kind, devices, elapsed)
	}
}

// Logger defines the logging interface used by the Prober.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Prober runs the heartbeat loop for one device kind.
//
// Cycles and CheckNow calls are serialised, so results for one device are
// written in the order they were produced. Within a cycle devices are probed
// concurrently up to the configured limit.
type Prober struct {
	kind     device.Kind
	registry Registry
	settings Settings
	checker  Checker
	sweeper  Sweeper
	observer Observer
	logger   Logger
	limit    int
	now      func() time.Time

	cycleMu  sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewProber creates a prober for kind. sweeper may be nil to disable
// retention entirely.
func NewProber(kind device.Kind, registry Registry, s Settings, checker Checker, sweeper Sweeper) *Prober {
	return &Prober{
		kind:     kind,
		registry: registry,
		settings: s,
		checker:  checker,
		sweeper:  sweeper,
		observer: Observers(nil),
		logger:   noopLogger{},
		limit:    DefaultConcurrency,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

// Kind returns the device kind this prober handles.
func (p *Prober) Kind() device.Kind {
	return p.kind
}

// SetLogger sets the logger for the prober.
func (p *Prober) SetLogger(logger Logger) {
	p.logger = logger
}

// SetObserver sets the probe observer. Must be called before Run.
func (p *Prober) SetObserver(o Observer) {
	if o == nil {
		o = Observers(nil)
	}
	p.observer = o
}

// SetConcurrency bounds simultaneous probes within one cycle.
func (p *Prober) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	p.limit = n
}

// Run executes probe cycles until ctx is cancelled or Stop is called. The
// first cycle starts immediately.
func (p *Prober) Run(ctx context.Context) {
	p.logger.Info("heartbeat prober started", "kind", p.kind)
	defer p.logger.Info("heartbeat prober stopped", "kind", p.kind)

	// Stop cancels a cycle in flight as well as the wait between cycles.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		interval := p.runCycle(ctx)
		timer.Reset(interval)
	}
}

// Stop ends Run. Safe to call more than once.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

// CheckNow probes every device of the kind once, regardless of whether the
// heartbeat is enabled, and returns the resulting snapshot. It does not run
// the retention sweep and does not affect the loop's schedule.
func (p *Prober) CheckNow(ctx context.Context) []device.Device {
	ks, err := p.kindSettings()
	if err != nil {
		p.logger.Warn("heartbeat settings unavailable", "kind", p.kind, "error", err)
		return p.registry.ListByKind(p.kind)
	}

	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	p.probeAll(ctx, ks.Heartbeat)
	return p.registry.ListByKind(p.kind)
}

// runCycle performs one scheduled cycle and returns the wait before the next.
func (p *Prober) runCycle(ctx context.Context) time.Duration {
	ks, err := p.kindSettings()
	if err != nil {
		p.logger.Warn("heartbeat settings unavailable", "kind", p.kind, "error", err)
		return fallbackInterval
	}

	interval := ks.Heartbeat.IntervalDuration()
	if interval <= 0 {
		interval = fallbackInterval
	}

	if !ks.Heartbeat.Enabled {
		p.logger.Debug("heartbeat disabled, skipping cycle", "kind", p.kind)
		return interval
	}

	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	start := time.Now()
	probed := p.probeAll(ctx, ks.Heartbeat)
	if ctx.Err() != nil {
		return interval
	}

	if p.sweeper != nil {
		snapshot := p.registry.ListByKind(p.kind)
		if removed := p.sweeper.Sweep(ctx, snapshot, ks.Retention.Enabled, ks.Retention.Hours); len(removed) > 0 {
			p.logger.Info("retention removed devices", "kind", p.kind, "count", len(removed))
		}
	}

	elapsed := time.Since(start)
	p.observer.CycleCompleted(p.kind, probed, elapsed)
	p.logger.Debug("heartbeat cycle complete", "kind", p.kind, "devices", probed, "elapsed", elapsed)

	return interval
}

func (p *Prober) kindSettings() (settings.Kind, error) {
	return p.settings.Get(p.kind)
}

// probeAll checks every device of the kind and returns how many were probed.
// Caller must hold p.cycleMu.
func (p *Prober) probeAll(ctx context.Context, hb settings.Heartbeat) int {
	devices := p.registry.ListByKind(p.kind)

	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, d := range devices {
		g.Go(func() error {
			p.probe(ctx, d, hb)
			return nil
		})
	}
	_ = g.Wait()

	return len(devices)
}

// probe checks one device and applies the outcome. A reachable device is
// marked connected and its last_seen advanced; an unreachable one is marked
// disconnected with last_seen left alone.
func (p *Prober) probe(ctx context.Context, d device.Device, hb settings.Heartbeat) {
	res := p.checker.Check(ctx, d.IPAddress, hb)
	if ctx.Err() != nil {
		// Cancelled mid-probe; the outcome says nothing about the device.
		return
	}
	p.observer.ProbeCompleted(p.kind, d.MAC, res)

	// The result only applies to the device as it was probed.
	u := device.Update{
		Reason:      device.ReasonProbe,
		MustExist:   true,
		IfKind:      p.kind,
		IfIPAddress: device.Ptr(d.IPAddress),
	}
	if res.Reachable {
		u.Status = device.Ptr(device.StatusConnected)
		u.Seen = p.now()
	} else {
		u.Status = device.Ptr(device.StatusDisconnected)
		p.logger.Debug("device unreachable", "kind", p.kind, "mac", d.MAC, "ip", d.IPAddress, "method", res.Method, "error", res.Err)
	}

	if _, err := p.registry.Upsert(ctx, d.MAC, u); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			p.logger.Debug("device removed during probe", "kind", p.kind, "mac", d.MAC)
			return
		case errors.Is(err, device.ErrStale):
			p.logger.Debug("device changed during probe, result dropped", "kind", p.kind, "mac", d.MAC, "ip", d.IPAddress)
			return
		}
		p.logger.Warn("applying probe result", "kind", p.kind, "mac", d.MAC, "error", err)
	}
}
