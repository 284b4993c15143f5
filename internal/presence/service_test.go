package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/heartbeat"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/plug"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
)

type fakeSwitcher struct {
	mu    sync.Mutex
	wasOn bool
	err   error
	hosts []string
}

func (f *fakeSwitcher) Status(_ context.Context, host string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = append(f.hosts, host)
	if f.err != nil {
		return false, f.err
	}
	return f.wasOn, nil
}

func (f *fakeSwitcher) SetSwitch(_ context.Context, host string, on bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = append(f.hosts, host)
	if f.err != nil {
		return false, f.err
	}
	was := f.wasOn
	f.wasOn = on
	return was, nil
}

type outcomeRecorder struct{ outcomes []string }

func (r *outcomeRecorder) PlugCommand(o string) { r.outcomes = append(r.outcomes, o) }

type reachableChecker struct{}

func (reachableChecker) Check(context.Context, string, settings.Heartbeat) heartbeat.Result {
	return heartbeat.Result{Reachable: true, Method: settings.MethodTCP}
}

func addPlug(t *testing.T, reg *device.Registry, mac string, status device.Status) {
	t.Helper()
	_, err := reg.Upsert(context.Background(), mac, device.Update{
		Kind:      device.KindPlug,
		Hostname:  device.Ptr("shellyplug-" + mac[len(mac)-2:]),
		IPAddress: device.Ptr("192.168.52.30"),
		Status:    device.Ptr(status),
	})
	require.NoError(t, err)
}

func TestService_SetPlugSwitch(t *testing.T) {
	reg := device.NewRegistry()
	addPlug(t, reg, "aa:bb:cc:dd:ee:01", device.StatusConnected)

	var events []string
	reg.SetPublisher(device.PublisherFunc(func(e device.Event) { events = append(events, e.Type()) }))

	sw := &fakeSwitcher{}
	rec := &outcomeRecorder{}
	svc := NewService(reg, sw)
	svc.SetRecorder(rec)

	res, err := svc.SetPlugSwitch(context.Background(), "AA:BB:CC:DD:EE:01", true)
	require.NoError(t, err)
	assert.Equal(t, SwitchResult{On: true, WasOn: false}, res)

	res, err = svc.SetPlugSwitch(context.Background(), "aa:bb:cc:dd:ee:01", false)
	require.NoError(t, err)
	assert.Equal(t, SwitchResult{On: false, WasOn: true}, res)

	d, err := reg.Get("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	require.NotNil(t, d.SwitchOn)
	assert.False(t, *d.SwitchOn)

	assert.Equal(t, []string{"192.168.52.30", "192.168.52.30"}, sw.hosts)
	assert.Equal(t, []string{"plug_switch_changed", "plug_switch_changed"}, events)
	assert.Equal(t, []string{"ok", "ok"}, rec.outcomes)
}

func TestService_SetPlugSwitchErrors(t *testing.T) {
	reg := device.NewRegistry()
	addPlug(t, reg, "aa:bb:cc:dd:ee:02", device.StatusDisconnected)
	addPlug(t, reg, "aa:bb:cc:dd:ee:03", device.StatusConnected)
	_, err := reg.Upsert(context.Background(), "aa:bb:cc:dd:ee:04", device.Update{Kind: device.KindCamera})
	require.NoError(t, err)

	tests := []struct {
		name     string
		mac      string
		switcher *fakeSwitcher
		want     error
	}{
		{"unknown mac", "aa:bb:cc:dd:ee:99", &fakeSwitcher{}, plug.ErrPlugNotFound},
		{"camera mac", "aa:bb:cc:dd:ee:04", &fakeSwitcher{}, plug.ErrPlugNotFound},
		{"offline plug", "aa:bb:cc:dd:ee:02", &fakeSwitcher{}, plug.ErrPlugNotConnected},
		{"timeout", "aa:bb:cc:dd:ee:03", &fakeSwitcher{err: fmt.Errorf("%w: x", plug.ErrPlugTimeout)}, plug.ErrPlugTimeout},
		{"refused", "aa:bb:cc:dd:ee:03", &fakeSwitcher{err: fmt.Errorf("%w: x", plug.ErrPlugConnectionRefused)}, plug.ErrPlugConnectionRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(reg, tt.switcher)
			_, err := svc.SetPlugSwitch(context.Background(), tt.mac, true)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	d, err := reg.Get("aa:bb:cc:dd:ee:03")
	require.NoError(t, err)
	assert.Nil(t, d.SwitchOn, "failed commands must not record a relay state")
}

func TestService_SetPlugMode(t *testing.T) {
	reg := device.NewRegistry()
	addPlug(t, reg, "aa:bb:cc:dd:ee:05", device.StatusConnected)
	svc := NewService(reg, nil)

	d, err := svc.SetPlugMode(context.Background(), "aa:bb:cc:dd:ee:05", device.PlugModeOn)
	require.NoError(t, err)
	assert.Equal(t, device.PlugModeOn, d.Mode)

	_, err = svc.SetPlugMode(context.Background(), "aa:bb:cc:dd:ee:05", "sometimes")
	assert.ErrorIs(t, err, device.ErrInvalidMode)

	_, err = svc.SetPlugMode(context.Background(), "aa:bb:cc:dd:ee:77", device.PlugModeOff)
	assert.ErrorIs(t, err, plug.ErrPlugNotFound)
}

func TestService_RegisterAndRemove(t *testing.T) {
	reg := device.NewRegistry()
	svc := NewService(reg, nil)

	d, err := svc.RegisterDevice(context.Background(), Registration{
		MAC:       "aa-bb-cc-dd-ee-06",
		Kind:      device.KindCamera,
		Hostname:  "Cam1",
		IPAddress: "192.168.52.40",
	})
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:06", d.MAC)
	assert.Equal(t, device.StatusDisconnected, d.Status)
	assert.True(t, d.LastSeen.IsZero())

	_, err = svc.RegisterDevice(context.Background(), Registration{MAC: "aa:bb:cc:dd:ee:07"})
	assert.ErrorIs(t, err, device.ErrKindRequired)

	removed, err := svc.RemoveDevice(context.Background(), "aa:bb:cc:dd:ee:06")
	require.NoError(t, err)
	assert.Equal(t, "Cam1", removed.Hostname)

	_, err = svc.RemoveDevice(context.Background(), "aa:bb:cc:dd:ee:06")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	h, ok := reg.History("aa:bb:cc:dd:ee:06")
	require.True(t, ok)
	assert.Equal(t, "Cam1", h.Hostname)
}

func TestService_ForceHeartbeatCheck(t *testing.T) {
	reg := device.NewRegistry()
	addPlug(t, reg, "aa:bb:cc:dd:ee:08", device.StatusDisconnected)
	_, err := reg.Upsert(context.Background(), "aa:bb:cc:dd:ee:09", device.Update{
		Kind:      device.KindCamera,
		IPAddress: device.Ptr("192.168.52.41"),
	})
	require.NoError(t, err)

	store := settings.NewStore(map[device.Kind]settings.Kind{
		device.KindCamera: {Heartbeat: settings.Heartbeat{Method: settings.MethodTCP, Interval: 60, TCPPort: 80, TCPTimeout: 1, ICMPTimeout: 1}},
		device.KindPlug:   {Heartbeat: settings.Heartbeat{Method: settings.MethodTCP, Interval: 60, TCPPort: 80, TCPTimeout: 1, ICMPTimeout: 1}},
	})

	svc := NewService(reg, nil)
	for _, kind := range device.Kinds() {
		svc.AddChecker(heartbeat.NewProber(kind, reg, store, reachableChecker{}, nil))
	}

	before := time.Now().UTC()
	devices := svc.ForceHeartbeatCheck(context.Background())

	require.Len(t, devices, 2)
	for _, d := range devices {
		assert.Equal(t, device.StatusConnected, d.Status, d.MAC)
		assert.False(t, d.LastSeen.Before(before.Truncate(time.Second)), d.MAC)
	}
}

func TestService_ForceHeartbeatCheckRefreshesSwitchState(t *testing.T) {
	reg := device.NewRegistry()
	addPlug(t, reg, "aa:bb:cc:dd:ee:0c", device.StatusDisconnected)

	store := settings.NewStore(map[device.Kind]settings.Kind{
		device.KindPlug: {Heartbeat: settings.Heartbeat{Method: settings.MethodTCP, Interval: 60, TCPPort: 80, TCPTimeout: 1, ICMPTimeout: 1}},
	})

	sw := &fakeSwitcher{wasOn: true}
	svc := NewService(reg, sw)
	svc.AddChecker(heartbeat.NewProber(device.KindPlug, reg, store, reachableChecker{}, nil))

	devices := svc.ForceHeartbeatCheck(context.Background())

	require.Len(t, devices, 1)
	require.NotNil(t, devices[0].SwitchOn)
	assert.True(t, *devices[0].SwitchOn)
	assert.Equal(t, []string{"192.168.52.30"}, sw.hosts)

	// A plug that does not answer keeps its recorded state.
	sw.err = fmt.Errorf("%w: x", plug.ErrPlugTimeout)
	devices = svc.ForceHeartbeatCheck(context.Background())
	require.NotNil(t, devices[0].SwitchOn)
	assert.True(t, *devices[0].SwitchOn)
}

func TestService_Devices(t *testing.T) {
	reg := device.NewRegistry()
	addPlug(t, reg, "aa:bb:cc:dd:ee:0a", device.StatusConnected)
	_, err := reg.Upsert(context.Background(), "aa:bb:cc:dd:ee:0b", device.Update{Kind: device.KindCamera})
	require.NoError(t, err)

	svc := NewService(reg, nil)
	assert.Len(t, svc.Devices(""), 2)
	plugs := svc.Devices(device.KindPlug)
	require.Len(t, plugs, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:0a", plugs[0].MAC)
}
