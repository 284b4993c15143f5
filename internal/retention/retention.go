package retention

import (
	"context"
	"errors"
	"time"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

// Remover deletes a device through the registry mutation path. The removal
// must be refused with device.ErrStale when the device's last_seen no longer
// equals seen.
type Remover interface {
	RemoveIfStale(ctx context.Context, mac string, seen time.Time) (device.Device, error)
}

// Recorder counts removals. Implementations must not block.
type Recorder interface {
	RetentionRemoved(kind device.Kind, count int)
}

// Logger defines the logging interface used by the Policy.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Policy evicts stale devices.
type Policy struct {
	remover  Remover
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// NewPolicy creates a policy that removes through remover.
func NewPolicy(remover Remover) *Policy {
	return &Policy{
		remover: remover,
		logger:  noopLogger{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the policy.
func (p *Policy) SetLogger(logger Logger) {
	p.logger = logger
}

// SetRecorder sets the removal recorder.
func (p *Policy) SetRecorder(r Recorder) {
	p.recorder = r
}

// Sweep removes every device in devices whose last_seen is more than
// thresholdHours ago and returns the removed devices.
//
// devices must be a snapshot; candidates are collected first and removed
// afterwards, each only if it has not been seen since the snapshot. Nothing is removed when enabled is false or thresholdHours is
// not positive. Devices with no last_seen are skipped and logged.
func (p *Policy) Sweep(ctx context.Context, devices []device.Device, enabled bool, thresholdHours int) []device.Device {
	if !enabled || len(devices) == 0 {
		return nil
	}
	if thresholdHours <= 0 {
		p.logger.Warn("retention threshold not positive, skipping sweep", "hours", thresholdHours)
		return nil
	}

	threshold := time.Duration(thresholdHours) * time.Hour
	now := p.now()

	var stale []device.Device
	for _, d := range devices {
		if d.LastSeen.IsZero() {
			p.logger.Warn("device has no last_seen, not removing", "mac", d.MAC, "kind", d.Kind)
			continue
		}
		if now.Sub(d.LastSeen) > threshold {
			stale = append(stale, d)
		}
	}

	removed := make([]device.Device, 0, len(stale))
	for _, d := range stale {
		if ctx.Err() != nil {
			break
		}
		gone, err := p.remover.RemoveIfStale(ctx, d.MAC, d.LastSeen)
		switch {
		case err == nil:
		case errors.Is(err, device.ErrDeviceNotFound):
			continue
		case errors.Is(err, device.ErrStale):
			p.logger.Info("device seen again, keeping", "mac", d.MAC, "kind", d.Kind)
			continue
		default:
			p.logger.Warn("retention removal failed", "mac", d.MAC, "error", err)
			continue
		}
		p.logger.Info("removed stale device",
			"mac", gone.MAC,
			"kind", gone.Kind,
			"hostname", gone.Hostname,
			"last_seen", gone.LastSeen,
			"threshold_hours", thresholdHours,
		)
		removed = append(removed, gone)
	}

	if p.recorder != nil && len(removed) > 0 {
		p.recorder.RetentionRemoved(removed[0].Kind, len(removed))
	}
	return removed
}
