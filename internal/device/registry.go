package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Registry is the single owner of device presence state and identity history.
//
// All mutations are serialised by one lock. Each successful Upsert or Remove
// publishes exactly one Event while the lock is held, so subscribers observe
// events in mutation order. A snapshot is handed to the Persister after the
// lock is released; persistence failures are logged and never undo the
// in-memory change.
//
// All public methods are thread-safe. Returned devices are deep copies.
type Registry struct {
	mu         sync.RWMutex
	devices    map[string]*Device
	history    map[string]HistoryEntry
	generation uint64

	publisher Publisher
	persister Persister
	logger    Logger
	now       func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:   make(map[string]*Device),
		history:   make(map[string]HistoryEntry),
		publisher: noopPublisher{},
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetPublisher sets the event sink. Must be called before concurrent use.
func (r *Registry) SetPublisher(p Publisher) {
	if p == nil {
		p = noopPublisher{}
	}
	r.publisher = p
}

// SetPersister sets the snapshot store. Must be called before concurrent use.
func (r *Registry) SetPersister(p Persister) {
	r.persister = p
}

// Load replaces registry contents with previously persisted state.
// It emits no events and does not persist.
func (r *Registry) Load(devices []Device, history []HistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i].DeepCopy()
		r.devices[d.MAC] = d
	}

	r.history = make(map[string]HistoryEntry, len(history))
	for _, h := range history {
		r.history[h.MAC] = h
	}

	r.logger.Info("device registry loaded", "devices", len(r.devices), "history", len(r.history))
}

// Get returns the device with the given MAC.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(mac string) (Device, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return Device{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[mac]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return *d.DeepCopy(), nil
}

// ListByKind returns a snapshot of every device of kind, ordered by MAC.
func (r *Registry) ListByKind(kind Kind) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		if d.Kind == kind {
			devices = append(devices, *d.DeepCopy())
		}
	}
	sortDevices(devices)
	return devices
}

// List returns a snapshot of every device, ordered by MAC.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []Device {
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	sortDevices(devices)
	return devices
}

// History returns the identity history entry for mac.
func (r *Registry) History(mac string) (HistoryEntry, bool) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return HistoryEntry{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.history[mac]
	return h, ok
}

// HistoryEntries returns all identity history entries, ordered by MAC.
func (r *Registry) HistoryEntries() []HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.historyLocked()
}

func (r *Registry) historyLocked() []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(r.history))
	for _, h := range r.history {
		entries = append(entries, h)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].MAC < entries[j].MAC })
	return entries
}

// Count returns the number of devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:     len(r.devices),
		ByKind:    make(map[Kind]int),
		Connected: make(map[Kind]int),
		History:   len(r.history),
	}
	for _, d := range r.devices {
		stats.ByKind[d.Kind]++
		if d.Connected() {
			stats.Connected[d.Kind]++
		}
	}
	return stats
}

// Upsert creates or updates the device with the given MAC and returns the
// resulting state.
//
// LastSeen only moves forward: u.Seen is applied when it is after the stored
// value. Empty and placeholder hostnames never overwrite a known one. Any
// usable hostname is recorded in identity history.
func (r *Registry) Upsert(ctx context.Context, mac string, u Update) (Device, error) {
	if err := ctx.Err(); err != nil {
		return Device{}, err
	}
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return Device{}, err
	}
	if err := validateUpdate(u); err != nil {
		return Device{}, err
	}

	r.mu.Lock()

	existing, found := r.devices[mac]
	var d *Device
	var before Status
	if found {
		d = existing.DeepCopy()
		before = d.Status
	} else {
		if u.MustExist {
			r.mu.Unlock()
			return Device{}, ErrDeviceNotFound
		}
		if u.Kind == "" {
			r.mu.Unlock()
			return Device{}, ErrKindRequired
		}
		d = &Device{MAC: mac, Kind: u.Kind, Status: StatusDisconnected}
		if u.Kind == KindPlug {
			d.Mode = PlugModeAutomatic
		}
	}

	if found && !matchesExpectation(d, u) {
		r.mu.Unlock()
		return Device{}, fmt.Errorf("%w: %s", ErrStale, mac)
	}

	if u.Kind != "" && u.Kind != d.Kind {
		r.logger.Warn("device kind changed", "mac", mac, "from", d.Kind, "to", u.Kind)
		d.Kind = u.Kind
		if d.Kind != KindPlug {
			d.Mode = ""
			d.SwitchOn = nil
		} else if d.Mode == "" {
			d.Mode = PlugModeAutomatic
		}
	}

	if (u.Mode != nil || u.SwitchOn != nil) && d.Kind != KindPlug {
		r.mu.Unlock()
		return Device{}, fmt.Errorf("%w: %s is a %s", ErrNotPlug, mac, d.Kind)
	}

	applyUpdate(d, u)

	r.devices[mac] = d
	r.recordHistoryLocked(d)

	kind := EventAdded
	if found {
		kind = eventKindFor(u.Reason, before, d.Status)
	}
	r.publisher.Publish(Event{Kind: kind, Device: *d.DeepCopy(), Time: r.now()})

	snap := r.snapshotLocked()
	result := *d.DeepCopy()
	r.mu.Unlock()

	r.logger.Debug("device upserted", "mac", mac, "kind", result.Kind, "event", kind, "status", result.Status)
	r.persist(ctx, snap)

	return result, nil
}

// Remove deletes the device with the given MAC and returns its last state.
// Identity history is kept. Returns ErrDeviceNotFound if absent.
func (r *Registry) Remove(ctx context.Context, mac string) (Device, error) {
	return r.remove(ctx, mac, nil)
}

// RemoveIfStale deletes the device only while its LastSeen still equals seen,
// the value the caller based its decision on. A device seen again since then
// is kept and ErrStale is returned.
func (r *Registry) RemoveIfStale(ctx context.Context, mac string, seen time.Time) (Device, error) {
	return r.remove(ctx, mac, func(d *Device) bool {
		return d.LastSeen.Equal(seen)
	})
}

func (r *Registry) remove(ctx context.Context, mac string, keep func(*Device) bool) (Device, error) {
	if err := ctx.Err(); err != nil {
		return Device{}, err
	}
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return Device{}, err
	}

	r.mu.Lock()

	d, ok := r.devices[mac]
	if !ok {
		r.mu.Unlock()
		return Device{}, ErrDeviceNotFound
	}
	if keep != nil && !keep(d) {
		r.mu.Unlock()
		return Device{}, fmt.Errorf("%w: %s", ErrStale, mac)
	}
	delete(r.devices, mac)

	removed := *d.DeepCopy()
	r.publisher.Publish(Event{Kind: EventRemoved, Device: removed, Time: r.now()})

	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("device removed", "mac", mac, "kind", removed.Kind)
	r.persist(ctx, snap)

	return removed, nil
}

// Persist writes the current state through the Persister without a mutation.
// Used after settings changes that live in the same state document.
func (r *Registry) Persist(ctx context.Context) {
	r.mu.Lock()
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, snap)
}

// snapshotLocked bumps the generation and copies current state.
// Caller must hold r.mu for writing.
func (r *Registry) snapshotLocked() Snapshot {
	r.generation++
	return Snapshot{
		Generation: r.generation,
		Devices:    r.listLocked(),
		History:    r.historyLocked(),
	}
}

func (r *Registry) persist(ctx context.Context, snap Snapshot) {
	if r.persister == nil {
		return
	}
	// Persistence must finish even if the triggering request went away.
	if err := r.persister.Persist(context.WithoutCancel(ctx), snap); err != nil {
		r.logger.Error("persisting device registry", "generation", snap.Generation, "error", err)
	}
}

// recordHistoryLocked stores d's identity when it carries a usable hostname.
func (r *Registry) recordHistoryLocked(d *Device) {
	if IsPlaceholderHostname(d.Hostname) {
		return
	}
	r.history[d.MAC] = HistoryEntry{MAC: d.MAC, Kind: d.Kind, Hostname: d.Hostname}
}

func validateUpdate(u Update) error {
	if u.Kind != "" && !u.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, u.Kind)
	}
	if u.Status != nil && *u.Status != StatusConnected && *u.Status != StatusDisconnected {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}
	if u.Mode != nil {
		if _, err := ParsePlugMode(string(*u.Mode)); err != nil {
			return err
		}
	}
	return nil
}

// matchesExpectation reports whether d satisfies the conditions in u.
func matchesExpectation(d *Device, u Update) bool {
	if u.IfKind != "" && d.Kind != u.IfKind {
		return false
	}
	if u.IfIPAddress != nil && d.IPAddress != *u.IfIPAddress {
		return false
	}
	return true
}

func applyUpdate(d *Device, u Update) {
	if u.Hostname != nil && !IsPlaceholderHostname(*u.Hostname) {
		d.Hostname = *u.Hostname
	}
	if u.IPAddress != nil && *u.IPAddress != "" {
		d.IPAddress = *u.IPAddress
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	if !u.Seen.IsZero() && u.Seen.After(d.LastSeen) {
		d.LastSeen = u.Seen.UTC()
	}
	if u.Mode != nil {
		d.Mode = *u.Mode
	}
	if u.SwitchOn != nil {
		on := *u.SwitchOn
		d.SwitchOn = &on
	}
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].MAC < devices[j].MAC })
}
