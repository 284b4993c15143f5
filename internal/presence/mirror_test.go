package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/heartbeat"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/influxdb"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/mqtt"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/stream"
)

type fakeMQTT struct {
	mu        sync.Mutex
	published map[string]any
	cleared   []string
}

func (f *fakeMQTT) PublishJSON(topic string, v any, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !retained {
		panic("presence must be retained")
	}
	f.published[topic] = v
	return nil
}

func (f *fakeMQTT) ClearRetained(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.published, topic)
	f.cleared = append(f.cleared, topic)
	return nil
}

func (f *fakeMQTT) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published), append([]string(nil), f.cleared...)
}

type fakeInflux struct {
	mu       sync.Mutex
	presence []influxdb.Presence
	probes   []influxdb.Probe
}

func (f *fakeInflux) WritePresence(p influxdb.Presence) {
	f.mu.Lock()
	f.presence = append(f.presence, p)
	f.mu.Unlock()
}

func (f *fakeInflux) WriteProbe(p influxdb.Probe) {
	f.mu.Lock()
	f.probes = append(f.probes, p)
	f.mu.Unlock()
}

func (f *fakeInflux) presenceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.presence)
}

func TestMQTTMirror_PublishesAndClears(t *testing.T) {
	b := stream.NewBroadcaster(16)
	reg := device.NewRegistry()
	reg.SetPublisher(b)

	pub := &fakeMQTT{published: make(map[string]any)}
	mirror := NewMQTTMirror(b, pub, mqtt.NewTopics("pumaguard"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mirror.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return b.Count() == 1 }, time.Second, 5*time.Millisecond)

	_, err := reg.Upsert(context.Background(), "aa:bb:cc:dd:ee:01", device.Update{Kind: device.KindCamera})
	require.NoError(t, err)
	require.Eventually(t, func() bool { n, _ := pub.snapshot(); return n == 1 }, time.Second, 5*time.Millisecond)

	_, err = reg.Remove(context.Background(), "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, c := pub.snapshot(); return len(c) == 1 }, time.Second, 5*time.Millisecond)

	_, cleared := pub.snapshot()
	assert.Equal(t, "pumaguard/presence/camera/aa:bb:cc:dd:ee:01", cleared[0])

	cancel()
	<-done
	assert.Zero(t, b.Count())
}

func TestInfluxMirror_WritesPresenceAndProbes(t *testing.T) {
	b := stream.NewBroadcaster(16)
	reg := device.NewRegistry()
	reg.SetPublisher(b)

	w := &fakeInflux{}
	mirror := NewInfluxMirror(b, w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx)
	require.Eventually(t, func() bool { return b.Count() == 1 }, time.Second, 5*time.Millisecond)

	_, err := reg.Upsert(context.Background(), "aa:bb:cc:dd:ee:02", device.Update{
		Kind:   device.KindPlug,
		Status: device.Ptr(device.StatusConnected),
	})
	require.NoError(t, err)
	_, err = reg.Remove(context.Background(), "aa:bb:cc:dd:ee:02")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return w.presenceCount() == 1 }, time.Second, 5*time.Millisecond)
	w.mu.Lock()
	assert.True(t, w.presence[0].Connected)
	assert.Equal(t, "plug", w.presence[0].Kind)
	w.mu.Unlock()

	var obs heartbeat.Observer = mirror
	obs.ProbeCompleted(device.KindPlug, "aa:bb:cc:dd:ee:02", heartbeat.Result{Reachable: true, Method: settings.MethodICMP, Latency: time.Millisecond})

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.probes, 1)
	assert.Equal(t, "icmp", w.probes[0].Method)
}
