package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, seen map[string]time.Time) *device.Registry {
	t.Helper()
	reg := device.NewRegistry()
	for mac, ts := range seen {
		_, err := reg.Upsert(context.Background(), mac, device.Update{
			Kind:     device.KindCamera,
			Hostname: device.Ptr("Microseven"),
			Seen:     ts,
		})
		require.NoError(t, err)
	}
	return reg
}

func newPolicy(reg *device.Registry) *Policy {
	p := NewPolicy(reg)
	p.now = func() time.Time { return now }
	return p
}

type recorder struct {
	kind  device.Kind
	count int
}

func (r *recorder) RetentionRemoved(kind device.Kind, count int) {
	r.kind = kind
	r.count += count
}

func TestSweep_EvictsOnlyBeyondThreshold(t *testing.T) {
	reg := newRegistry(t, map[string]time.Time{
		"aa:bb:cc:00:00:25": now.Add(-25 * time.Hour),
		"aa:bb:cc:00:00:23": now.Add(-23 * time.Hour),
	})
	p := newPolicy(reg)
	rec := &recorder{}
	p.SetRecorder(rec)

	removed := p.Sweep(context.Background(), reg.ListByKind(device.KindCamera), true, 24)

	require.Len(t, removed, 1)
	assert.Equal(t, "aa:bb:cc:00:00:25", removed[0].MAC)

	_, err := reg.Get("aa:bb:cc:00:00:25")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	_, err = reg.Get("aa:bb:cc:00:00:23")
	assert.NoError(t, err)

	assert.Equal(t, device.KindCamera, rec.kind)
	assert.Equal(t, 1, rec.count)
}

func TestSweep_NeverRemovesWithoutLastSeen(t *testing.T) {
	reg := newRegistry(t, map[string]time.Time{"aa:bb:cc:00:00:01": {}})
	p := newPolicy(reg)

	for _, hours := range []int{1, 24, 1000} {
		assert.Empty(t, p.Sweep(context.Background(), reg.ListByKind(device.KindCamera), true, hours))
	}
	assert.Equal(t, 1, reg.Count())
}

func TestSweep_DisabledRemovesNothing(t *testing.T) {
	reg := newRegistry(t, map[string]time.Time{"aa:bb:cc:00:00:02": now.Add(-1000 * time.Hour)})
	p := newPolicy(reg)

	assert.Empty(t, p.Sweep(context.Background(), reg.ListByKind(device.KindCamera), false, 24))
	assert.Empty(t, p.Sweep(context.Background(), reg.ListByKind(device.KindCamera), true, 0))
	assert.Equal(t, 1, reg.Count())
}

func TestSweep_KeepsHistoryForRemovedDevice(t *testing.T) {
	reg := newRegistry(t, map[string]time.Time{"aa:bb:cc:00:00:03": now.Add(-48 * time.Hour)})
	p := newPolicy(reg)

	require.Len(t, p.Sweep(context.Background(), reg.ListByKind(device.KindCamera), true, 24), 1)

	h, ok := reg.History("aa:bb:cc:00:00:03")
	require.True(t, ok)
	assert.Equal(t, "Microseven", h.Hostname)
	assert.Equal(t, device.KindCamera, h.Kind)
}

func TestSweep_SkipsDevicesAlreadyGone(t *testing.T) {
	reg := newRegistry(t, map[string]time.Time{"aa:bb:cc:00:00:04": now.Add(-48 * time.Hour)})
	p := newPolicy(reg)

	snapshot := reg.ListByKind(device.KindCamera)
	_, err := reg.Remove(context.Background(), "aa:bb:cc:00:00:04")
	require.NoError(t, err)

	assert.Empty(t, p.Sweep(context.Background(), snapshot, true, 24))
}

func TestSweep_EmitsRemovedEvent(t *testing.T) {
	reg := newRegistry(t, map[string]time.Time{"aa:bb:cc:00:00:05": now.Add(-30 * time.Hour)})
	var events []device.Event
	reg.SetPublisher(device.PublisherFunc(func(e device.Event) { events = append(events, e) }))

	newPolicy(reg).Sweep(context.Background(), reg.ListByKind(device.KindCamera), true, 24)

	require.Len(t, events, 1)
	assert.Equal(t, "camera_removed", events[0].Type())
}

func TestSweep_KeepsDeviceSeenAfterSnapshot(t *testing.T) {
	const mac = "aa:bb:cc:00:00:06"
	reg := newRegistry(t, map[string]time.Time{mac: now.Add(-25 * time.Hour)})
	p := newPolicy(reg)

	snapshot := reg.ListByKind(device.KindCamera)

	// A lease renewal lands between the snapshot and the sweep.
	_, err := reg.Upsert(context.Background(), mac, device.Update{
		Status: device.Ptr(device.StatusConnected),
		Seen:   now,
		Reason: device.ReasonDHCP,
	})
	require.NoError(t, err)

	assert.Empty(t, p.Sweep(context.Background(), snapshot, true, 24))

	d, err := reg.Get(mac)
	require.NoError(t, err)
	assert.True(t, d.LastSeen.Equal(now))
}
