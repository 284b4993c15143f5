package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

func event(kind device.Kind, mac string, ek device.EventKind) device.Event {
	return device.Event{
		Kind:   ek,
		Device: device.Device{MAC: mac, Kind: kind, Status: device.StatusConnected},
		Time:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

type countingRecorder struct {
	mu          sync.Mutex
	dropped     int
	subscribers int
}

func (r *countingRecorder) StreamDropped() {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
}

func (r *countingRecorder) StreamSubscribers(n int) {
	r.mu.Lock()
	r.subscribers = n
	r.mu.Unlock()
}

func TestBroadcaster_DeliversInPublishOrder(t *testing.T) {
	b := NewBroadcaster(8)
	a := b.Subscribe()
	c := b.Subscribe()

	for _, mac := range []string{"aa:00:00:00:00:01", "aa:00:00:00:00:02", "aa:00:00:00:00:03"} {
		b.Publish(event(device.KindCamera, mac, device.EventConnected))
	}

	for _, sub := range []*Subscriber{a, c} {
		for _, want := range []string{"aa:00:00:00:00:01", "aa:00:00:00:00:02", "aa:00:00:00:00:03"} {
			got := <-sub.Events()
			assert.Equal(t, want, got.Device.MAC)
		}
	}
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestBroadcaster_FullQueueDropsWithoutBlocking(t *testing.T) {
	b := NewBroadcaster(2)
	rec := &countingRecorder{}
	b.SetRecorder(rec)

	stalled := b.Subscribe()
	healthy := b.Subscribe()

	received := make(chan device.Event, 100)
	go func() {
		for e := range healthy.Events() {
			received <- e
		}
	}()

	done := make(chan struct{})
	go func() {
		for range 50 {
			b.Publish(event(device.KindPlug, "bb:00:00:00:00:01", device.EventConnected))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}

	assert.Equal(t, uint64(48), stalled.Dropped())
	assert.Len(t, stalled.Events(), 2)

	rec.mu.Lock()
	assert.GreaterOrEqual(t, rec.dropped, 48)
	rec.mu.Unlock()

	require.Eventually(t, func() bool { return len(received) > 0 }, time.Second, 5*time.Millisecond)
	b.Unsubscribe(healthy)
}

func TestBroadcaster_KindFilter(t *testing.T) {
	b := NewBroadcaster(4)
	plugs := b.Subscribe(device.KindPlug)

	b.Publish(event(device.KindCamera, "aa:00:00:00:00:01", device.EventAdded))
	b.Publish(event(device.KindPlug, "bb:00:00:00:00:01", device.EventModeChanged))

	require.Len(t, plugs.Events(), 1)
	got := <-plugs.Events()
	assert.Equal(t, "plug_mode_changed", got.Type())
}

func TestBroadcaster_UnsubscribeClosesOnce(t *testing.T) {
	b := NewBroadcaster(1)
	rec := &countingRecorder{}
	b.SetRecorder(rec)

	sub := b.Subscribe()
	assert.Equal(t, 1, b.Count())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Zero(t, b.Count())
	assert.Zero(t, rec.subscribers)

	// Publishing after unsubscribe must not panic.
	b.Publish(event(device.KindCamera, "aa:00:00:00:00:01", device.EventRemoved))
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(1)
	sub := b.Subscribe()

	b.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
	b.Unsubscribe(sub)

	late := b.Subscribe()
	_, open = <-late.Events()
	assert.False(t, open)
	assert.Zero(t, b.Count())
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(4)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				sub := b.Subscribe()
				b.Publish(event(device.KindCamera, "aa:00:00:00:00:01", device.EventConnected))
				b.Unsubscribe(sub)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, b.Count())
}

func TestBroadcaster_PublisherContract(t *testing.T) {
	b := NewBroadcaster(0)
	sub := b.Subscribe()

	reg := device.NewRegistry()
	reg.SetPublisher(b)

	_, err := reg.Upsert(t.Context(), "AA-BB-CC-DD-EE-FF", device.Update{Kind: device.KindCamera})
	require.NoError(t, err)

	e := <-sub.Events()
	assert.Equal(t, "camera_added", e.Type())
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", e.Device.MAC)
}
