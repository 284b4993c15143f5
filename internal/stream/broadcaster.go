package stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Logger defines the logging interface used by the stream package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder observes broadcaster activity. Implementations must not block.
type Recorder interface {
	StreamDropped()
	StreamSubscribers(n int)
}

// Subscriber is one live stream consumer.
type Subscriber struct {
	id      string
	kinds   map[device.Kind]struct{}
	events  chan device.Event
	dropped atomic.Uint64
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Events returns the subscriber's queue. It is closed on Unsubscribe.
func (s *Subscriber) Events() <-chan device.Event {
	return s.events
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscriber) wants(kind device.Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Broadcaster distributes events to subscribers.
//
// Sends happen under the read lock and closes under the write lock, so a
// queue is never written after it was closed.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[string]*Subscriber
	buffer   int
	closed   bool
	logger   Logger
	recorder Recorder
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to buffer
// events. A non-positive buffer selects DefaultBuffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		subs:   make(map[string]*Subscriber),
		buffer: buffer,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the broadcaster.
func (b *Broadcaster) SetLogger(logger Logger) {
	b.logger = logger
}

// SetRecorder sets the activity recorder. Must be called before use.
func (b *Broadcaster) SetRecorder(r Recorder) {
	b.recorder = r
}

// Subscribe registers a new subscriber. With kinds given, only events for
// devices of those kinds are delivered. After Close the returned subscriber's
// queue is already closed.
func (b *Broadcaster) Subscribe(kinds ...device.Kind) *Subscriber {
	sub := &Subscriber{
		id:     uuid.NewString(),
		events: make(chan device.Event, b.buffer),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[device.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.events)
		return sub
	}
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("stream subscriber added", "subscriber", sub.id, "subscribers", n)
	b.record(n)
	return sub
}

// Unsubscribe removes sub and closes its queue. Safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	_, existed := b.subs[sub.id]
	if existed {
		delete(b.subs, sub.id)
		close(sub.events)
	}
	n := len(b.subs)
	b.mu.Unlock()

	if existed {
		b.logger.Debug("stream subscriber removed", "subscriber", sub.id, "subscribers", n, "dropped", sub.Dropped())
		b.record(n)
	}
}

// Publish queues e for every interested subscriber without blocking.
// Implements device.Publisher.
func (b *Broadcaster) Publish(e device.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(e.Device.Kind) {
			continue
		}
		select {
		case sub.events <- e:
		default:
			sub.dropped.Add(1)
			if b.recorder != nil {
				b.recorder.StreamDropped()
			}
		}
	}
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later Subscribe calls get a closed queue.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	for id, sub := range b.subs {
		close(sub.events)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	b.record(0)
}

func (b *Broadcaster) record(n int) {
	if b.recorder != nil {
		b.recorder.StreamSubscribers(n)
	}
}
