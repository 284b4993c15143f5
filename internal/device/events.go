package device

import (
	"context"
	"encoding/json"
	"time"
)

// EventKind names a registry change.
type EventKind string

// Registry change kinds.
const (
	EventAdded                EventKind = "added"
	EventRemoved              EventKind = "removed"
	EventConnected            EventKind = "connected"
	EventDisconnected         EventKind = "disconnected"
	EventStatusChangedOnline  EventKind = "status_changed_online"
	EventStatusChangedOffline EventKind = "status_changed_offline"
	EventModeChanged          EventKind = "mode_changed"
	EventSwitchChanged        EventKind = "switch_changed"
)

// Event is emitted exactly once per successful Upsert or Remove.
type Event struct {
	Kind   EventKind
	Device Device
	Time   time.Time
}

// Type returns the wire name, "<device kind>_<event kind>", e.g. camera_added.
func (e Event) Type() string {
	return string(e.Device.Kind) + "_" + string(e.Kind)
}

// MarshalJSON renders the change stream shape {type, data, timestamp}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		Data      Device `json:"data"`
		Timestamp string `json:"timestamp"`
	}{
		Type:      e.Type(),
		Data:      e.Device,
		Timestamp: e.Time.UTC().Format(time.RFC3339),
	})
}

// Publisher receives registry events. Publish is called with the registry
// lock held and must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }

// Snapshot is a point-in-time copy of the registry handed to a Persister.
// Generation increases with every mutation.
type Snapshot struct {
	Generation uint64
	Devices    []Device
	History    []HistoryEntry
}

// Persister stores registry snapshots. It is called outside the registry
// lock, possibly concurrently; implementations must drop snapshots older
// than the newest one already written.
type Persister interface {
	Persist(ctx context.Context, snap Snapshot) error
}

// eventKindFor derives the event kind for an update of an existing device.
func eventKindFor(reason Reason, before, after Status) EventKind {
	switch reason {
	case ReasonMode:
		return EventModeChanged
	case ReasonSwitch:
		return EventSwitchChanged
	case ReasonProbe:
		if before != after {
			if after == StatusConnected {
				return EventStatusChangedOnline
			}
			return EventStatusChangedOffline
		}
	}
	if after == StatusConnected {
		return EventConnected
	}
	return EventDisconnected
}
