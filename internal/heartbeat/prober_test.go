package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/stream"
)

// fakeChecker answers from a per-IP table and records the order of calls.
type fakeChecker struct {
	mu        sync.Mutex
	method    settings.Method
	reachable map[string]bool
	calls     []string
	onCheck   func(ip string)
}

func (f *fakeChecker) Check(_ context.Context, ip string, _ settings.Heartbeat) Result {
	f.mu.Lock()
	f.calls = append(f.calls, string(f.method)+":"+ip)
	ok := f.reachable[ip]
	hook := f.onCheck
	f.mu.Unlock()

	if hook != nil {
		hook(ip)
	}
	return Result{Reachable: ok, Method: f.method, Latency: time.Millisecond}
}

func (f *fakeChecker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	devices []device.Device
	enabled bool
	hours   int
}

func (s *fakeSweeper) Sweep(_ context.Context, devices []device.Device, enabled bool, hours int) []device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.devices = devices
	s.enabled = enabled
	s.hours = hours
	return nil
}

type countingObserver struct {
	mu     sync.Mutex
	probes int
	cycles int
}

func (o *countingObserver) ProbeCompleted(device.Kind, string, Result) {
	o.mu.Lock()
	o.probes++
	o.mu.Unlock()
}

func (o *countingObserver) CycleCompleted(device.Kind, int, time.Duration) {
	o.mu.Lock()
	o.cycles++
	o.mu.Unlock()
}

func kindSettings(enabled bool) settings.Kind {
	return settings.Kind{
		Heartbeat: settings.Heartbeat{Enabled: enabled, Interval: 3600, Method: settings.MethodTCP, TCPPort: 80, TCPTimeout: 1, ICMPTimeout: 1},
		Retention: settings.Retention{Enabled: true, Hours: 24},
	}
}

func newStore(enabled bool) *settings.Store {
	return settings.NewStore(map[device.Kind]settings.Kind{
		device.KindCamera: kindSettings(enabled),
		device.KindPlug:   kindSettings(enabled),
	})
}

func seed(t *testing.T, r *device.Registry, mac, ip string, status device.Status, seen time.Time) {
	t.Helper()
	_, err := r.Upsert(context.Background(), mac, device.Update{
		Kind:      device.KindCamera,
		Hostname:  device.Ptr("Microseven-" + mac[len(mac)-2:]),
		IPAddress: device.Ptr(ip),
		Status:    device.Ptr(status),
		Seen:      seen,
		Reason:    device.ReasonManual,
	})
	require.NoError(t, err)
}

func TestProber_ReachableAdvancesLastSeen(t *testing.T) {
	reg := device.NewRegistry()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, reg, "aa:bb:cc:dd:ee:01", "192.168.52.10", device.StatusDisconnected, old)

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{"192.168.52.10": true}}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.runCycle(context.Background())

	d, err := reg.Get("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, device.StatusConnected, d.Status)
	assert.Equal(t, now, d.LastSeen)
}

func TestProber_FailedProbePreservesLastSeen(t *testing.T) {
	reg := device.NewRegistry()
	seen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	seed(t, reg, "aa:bb:cc:dd:ee:02", "192.168.52.11", device.StatusConnected, seen)

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{}}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)

	p.runCycle(context.Background())

	d, err := reg.Get("aa:bb:cc:dd:ee:02")
	require.NoError(t, err)
	assert.Equal(t, device.StatusDisconnected, d.Status)
	assert.Equal(t, seen, d.LastSeen)
}

func TestProber_StatusFlipEmitsStatusChangedEvents(t *testing.T) {
	reg := device.NewRegistry()
	seed(t, reg, "aa:bb:cc:dd:ee:03", "192.168.52.12", device.StatusDisconnected, time.Time{})

	var mu sync.Mutex
	var kinds []device.EventKind
	reg.SetPublisher(device.PublisherFunc(func(e device.Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	}))

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{"192.168.52.12": true}}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)

	p.runCycle(context.Background())
	p.runCycle(context.Background())
	checker.mu.Lock()
	checker.reachable["192.168.52.12"] = false
	checker.mu.Unlock()
	p.runCycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []device.EventKind{
		device.EventStatusChangedOnline,
		device.EventConnected,
		device.EventStatusChangedOffline,
	}, kinds)
}

func TestProber_OnlyProbesOwnKind(t *testing.T) {
	reg := device.NewRegistry()
	seed(t, reg, "aa:bb:cc:dd:ee:04", "192.168.52.13", device.StatusDisconnected, time.Time{})
	_, err := reg.Upsert(context.Background(), "aa:bb:cc:dd:ee:05", device.Update{
		Kind:      device.KindPlug,
		IPAddress: device.Ptr("192.168.52.14"),
	})
	require.NoError(t, err)

	checker := &fakeChecker{method: settings.MethodTCP}
	p := NewProber(device.KindPlug, reg, newStore(true), checker, nil)
	p.runCycle(context.Background())

	assert.Equal(t, []string{"tcp:192.168.52.14"}, checker.Calls())
}

func TestProber_DisabledSkipsCycle(t *testing.T) {
	reg := device.NewRegistry()
	seed(t, reg, "aa:bb:cc:dd:ee:06", "192.168.52.15", device.StatusConnected, time.Now())

	checker := &fakeChecker{method: settings.MethodTCP}
	sweeper := &fakeSweeper{}
	p := NewProber(device.KindCamera, reg, newStore(false), checker, sweeper)

	interval := p.runCycle(context.Background())

	assert.Empty(t, checker.Calls())
	assert.Zero(t, sweeper.calls)
	assert.Equal(t, time.Hour, interval)
}

func TestProber_SweepsAfterProbingWithRetentionSettings(t *testing.T) {
	reg := device.NewRegistry()
	seed(t, reg, "aa:bb:cc:dd:ee:07", "192.168.52.16", device.StatusDisconnected, time.Time{})

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{"192.168.52.16": true}}
	sweeper := &fakeSweeper{}
	obs := &countingObserver{}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, sweeper)
	p.SetObserver(obs)

	p.runCycle(context.Background())

	require.Equal(t, 1, sweeper.calls)
	assert.True(t, sweeper.enabled)
	assert.Equal(t, 24, sweeper.hours)
	require.Len(t, sweeper.devices, 1)
	assert.Equal(t, device.StatusConnected, sweeper.devices[0].Status, "sweep must see the just-updated state")
	assert.Equal(t, 1, obs.probes)
	assert.Equal(t, 1, obs.cycles)
}

func TestProber_DeviceRemovedDuringProbeIsNotRecreated(t *testing.T) {
	reg := device.NewRegistry()
	seed(t, reg, "aa:bb:cc:dd:ee:08", "192.168.52.17", device.StatusConnected, time.Time{})

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{"192.168.52.17": true}}
	checker.onCheck = func(string) {
		_, err := reg.Remove(context.Background(), "aa:bb:cc:dd:ee:08")
		assert.NoError(t, err)
	}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)

	p.runCycle(context.Background())

	_, err := reg.Get("aa:bb:cc:dd:ee:08")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
}

func TestProber_CheckNowIgnoresEnabledAndSkipsSweep(t *testing.T) {
	reg := device.NewRegistry()
	seed(t, reg, "aa:bb:cc:dd:ee:09", "192.168.52.18", device.StatusDisconnected, time.Time{})

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{"192.168.52.18": true}}
	sweeper := &fakeSweeper{}
	p := NewProber(device.KindCamera, reg, newStore(false), checker, sweeper)

	devices := p.CheckNow(context.Background())

	require.Len(t, devices, 1)
	assert.Equal(t, device.StatusConnected, devices[0].Status)
	assert.Zero(t, sweeper.calls)
}

func TestProber_StopInterruptsLongWait(t *testing.T) {
	reg := device.NewRegistry()
	checker := &fakeChecker{method: settings.MethodTCP}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	// Let the immediate first cycle run, then stop during the hour-long wait.
	time.Sleep(50 * time.Millisecond)
	p.Stop()
	p.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestProber_ContextCancelStopsRun(t *testing.T) {
	p := NewProber(device.KindPlug, device.NewRegistry(), newStore(true), &fakeChecker{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestProber_ConcurrencyLimit(t *testing.T) {
	reg := device.NewRegistry()
	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"} {
		mac := "aa:bb:cc:dd:ee:1" + string(rune('0'+i))
		seed(t, reg, mac, ip, device.StatusDisconnected, time.Time{})
	}

	var mu sync.Mutex
	inFlight, peak := 0, 0
	checker := &fakeChecker{method: settings.MethodTCP}
	checker.onCheck = func(string) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)
	p.SetConcurrency(2)
	p.runCycle(context.Background())

	assert.Len(t, checker.Calls(), 6)
	assert.LessOrEqual(t, peak, 2)
}

// slowChecker answers after delay unless ctx ends first.
type slowChecker struct {
	delay time.Duration
}

func (c slowChecker) Check(ctx context.Context, _ string, _ settings.Heartbeat) Result {
	select {
	case <-time.After(c.delay):
		return Result{Reachable: true, Method: settings.MethodTCP}
	case <-ctx.Done():
		return Result{Method: settings.MethodTCP, Err: ctx.Err()}
	}
}

func TestProber_StopInterruptsRunningCycle(t *testing.T) {
	reg := device.NewRegistry()
	for i := 0; i < 16; i++ {
		seed(t, reg, fmt.Sprintf("aa:bb:cc:dd:ef:%02x", i), fmt.Sprintf("10.0.1.%d", i+1), device.StatusDisconnected, time.Time{})
	}

	p := NewProber(device.KindCamera, reg, newStore(true), slowChecker{delay: 500 * time.Millisecond}, nil)
	p.SetConcurrency(4)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	stopped := time.Now()
	p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Less(t, time.Since(stopped), 250*time.Millisecond)

	// Interrupted probes say nothing about the devices.
	for _, d := range reg.ListByKind(device.KindCamera) {
		assert.Equal(t, device.StatusDisconnected, d.Status, d.MAC)
		assert.True(t, d.LastSeen.IsZero(), d.MAC)
	}
}

func TestProber_DropsResultWhenAddressChanged(t *testing.T) {
	const mac = "aa:bb:cc:dd:ee:20"
	reg := device.NewRegistry()
	seed(t, reg, mac, "192.168.52.30", device.StatusConnected, time.Time{})

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{}}
	checker.onCheck = func(string) {
		// New lease while the old address is being probed.
		_, err := reg.Upsert(context.Background(), mac, device.Update{
			IPAddress: device.Ptr("192.168.52.31"),
			Status:    device.Ptr(device.StatusConnected),
			Seen:      time.Now().UTC(),
			Reason:    device.ReasonDHCP,
		})
		assert.NoError(t, err)
	}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)

	p.runCycle(context.Background())

	d, err := reg.Get(mac)
	require.NoError(t, err)
	assert.Equal(t, "192.168.52.31", d.IPAddress)
	assert.Equal(t, device.StatusConnected, d.Status)
}

func TestProber_DropsResultWhenKindChanged(t *testing.T) {
	const mac = "aa:bb:cc:dd:ee:21"
	reg := device.NewRegistry()
	seed(t, reg, mac, "192.168.52.32", device.StatusDisconnected, time.Time{})

	checker := &fakeChecker{method: settings.MethodTCP, reachable: map[string]bool{"192.168.52.32": true}}
	checker.onCheck = func(string) {
		_, err := reg.Upsert(context.Background(), mac, device.Update{Kind: device.KindPlug, Reason: device.ReasonManual})
		assert.NoError(t, err)
	}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)

	p.runCycle(context.Background())

	d, err := reg.Get(mac)
	require.NoError(t, err)
	assert.Equal(t, device.KindPlug, d.Kind)
	assert.Equal(t, device.StatusDisconnected, d.Status)
	assert.True(t, d.LastSeen.IsZero())
}

func TestProber_StalledSubscriberDoesNotBlockUpserts(t *testing.T) {
	reg := device.NewRegistry()
	bus := stream.NewBroadcaster(1)
	reg.SetPublisher(bus)

	// Never read from.
	stalled := bus.Subscribe()
	defer bus.Unsubscribe(stalled)

	reachable := map[string]bool{}
	for i := 0; i < 20; i++ {
		ip := fmt.Sprintf("10.0.2.%d", i+1)
		reachable[ip] = true
		seed(t, reg, fmt.Sprintf("aa:bb:cc:dd:f0:%02x", i), ip, device.StatusDisconnected, time.Time{})
	}

	checker := &fakeChecker{method: settings.MethodTCP, reachable: reachable}
	p := NewProber(device.KindCamera, reg, newStore(true), checker, nil)

	done := make(chan struct{})
	go func() {
		p.runCycle(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("probe cycle blocked behind a stalled subscriber")
	}

	for _, d := range reg.ListByKind(device.KindCamera) {
		assert.Equal(t, device.StatusConnected, d.Status, d.MAC)
	}
	assert.Positive(t, stalled.Dropped())
}
