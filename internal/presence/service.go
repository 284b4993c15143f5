package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/plug"
)

// Registry is the subset of the device registry the service uses.
type Registry interface {
	Get(mac string) (device.Device, error)
	List() []device.Device
	Upsert(ctx context.Context, mac string, u device.Update) (device.Device, error)
	Remove(ctx context.Context, mac string) (device.Device, error)
}

// Checker runs an out-of-schedule heartbeat check for one kind.
type Checker interface {
	Kind() device.Kind
	CheckNow(ctx context.Context) []device.Device
}

// Switcher drives a plug relay.
type Switcher interface {
	SetSwitch(ctx context.Context, host string, on bool) (wasOn bool, err error)
	Status(ctx context.Context, host string) (on bool, err error)
}

// Recorder counts plug commands. Implementations must not block.
type Recorder interface {
	PlugCommand(outcome string)
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) PlugCommand(string) {}

// Registration is a manual device registration.
type Registration struct {
	MAC       string      `json:"mac"`
	Kind      device.Kind `json:"kind"`
	Hostname  string      `json:"hostname"`
	IPAddress string      `json:"ip_address"`
}

// SwitchResult reports a relay change.
type SwitchResult struct {
	On    bool `json:"on"`
	WasOn bool `json:"was_on"`
}

// Service implements the manual control operations.
type Service struct {
	registry Registry
	switcher Switcher
	recorder Recorder
	logger   Logger

	mu       sync.RWMutex
	checkers map[device.Kind]Checker
}

// NewService creates a service. switcher may be nil when plug control is not
// available; SetPlugSwitch then reports ErrPlugNotConnected.
func NewService(registry Registry, switcher Switcher) *Service {
	return &Service{
		registry: registry,
		switcher: switcher,
		recorder: noopRecorder{},
		logger:   noopLogger{},
		checkers: make(map[device.Kind]Checker),
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder sets the plug command recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	s.recorder = r
}

// AddChecker registers the heartbeat prober for its kind.
func (s *Service) AddChecker(c Checker) {
	s.mu.Lock()
	s.checkers[c.Kind()] = c
	s.mu.Unlock()
}

// Devices returns every known device, optionally limited to kind.
func (s *Service) Devices(kind device.Kind) []device.Device {
	all := s.registry.List()
	if kind == "" {
		return all
	}
	out := make([]device.Device, 0, len(all))
	for _, d := range all {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Device returns the device with the given MAC.
func (s *Service) Device(mac string) (device.Device, error) {
	return s.registry.Get(mac)
}

// RemoveDevice deletes a device. Its identity history is kept.
func (s *Service) RemoveDevice(ctx context.Context, mac string) (device.Device, error) {
	d, err := s.registry.Remove(ctx, mac)
	if err != nil {
		return device.Device{}, err
	}
	s.logger.Info("device removed manually", "mac", d.MAC, "kind", d.Kind)
	return d, nil
}

// RegisterDevice creates or updates a device by hand. Registration is not
// proof of contact: status and last_seen are left to DHCP and probes.
func (s *Service) RegisterDevice(ctx context.Context, reg Registration) (device.Device, error) {
	if reg.Kind == "" {
		return device.Device{}, device.ErrKindRequired
	}
	u := device.Update{Kind: reg.Kind, Reason: device.ReasonManual}
	if reg.Hostname != "" {
		u.Hostname = device.Ptr(reg.Hostname)
	}
	if reg.IPAddress != "" {
		u.IPAddress = device.Ptr(reg.IPAddress)
	}
	d, err := s.registry.Upsert(ctx, reg.MAC, u)
	if err != nil {
		return device.Device{}, err
	}
	s.logger.Info("device registered manually", "mac", d.MAC, "kind", d.Kind, "hostname", d.Hostname)
	return d, nil
}

// ForceHeartbeatCheck probes every device of every kind now, kinds in
// parallel, then reads back the relay state of every connected plug and
// returns the resulting snapshot of all devices.
func (s *Service) ForceHeartbeatCheck(ctx context.Context) []device.Device {
	s.mu.RLock()
	checkers := make([]Checker, 0, len(s.checkers))
	for _, kind := range device.Kinds() {
		if c, ok := s.checkers[kind]; ok {
			checkers = append(checkers, c)
		}
	}
	s.mu.RUnlock()

	var g errgroup.Group
	for _, c := range checkers {
		g.Go(func() error {
			c.CheckNow(ctx)
			return nil
		})
	}
	_ = g.Wait()

	s.refreshSwitchState(ctx)

	return s.registry.List()
}

// refreshSwitchState records the relay state reported by each connected plug.
// Plugs that fail to answer keep their last known state.
func (s *Service) refreshSwitchState(ctx context.Context) {
	if s.switcher == nil {
		return
	}

	var g errgroup.Group
	for _, d := range s.registry.List() {
		if d.Kind != device.KindPlug || !d.Connected() || d.IPAddress == "" {
			continue
		}
		g.Go(func() error {
			on, err := s.switcher.Status(ctx, d.IPAddress)
			if err != nil {
				s.logger.Warn("reading plug switch state", "mac", d.MAC, "ip", d.IPAddress, "error", err)
				return nil
			}
			if d.SwitchOn != nil && *d.SwitchOn == on {
				return nil
			}
			_, err = s.registry.Upsert(ctx, d.MAC, device.Update{
				SwitchOn:    device.Ptr(on),
				Reason:      device.ReasonSwitch,
				MustExist:   true,
				IfKind:      device.KindPlug,
				IfIPAddress: device.Ptr(d.IPAddress),
			})
			if err != nil && !errors.Is(err, device.ErrDeviceNotFound) && !errors.Is(err, device.ErrStale) {
				s.logger.Warn("recording plug switch state", "mac", d.MAC, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// SetPlugMode records the operating mode of a plug.
func (s *Service) SetPlugMode(ctx context.Context, mac string, mode device.PlugMode) (device.Device, error) {
	if _, err := device.ParsePlugMode(string(mode)); err != nil {
		return device.Device{}, err
	}
	if _, err := s.plug(mac); err != nil {
		return device.Device{}, err
	}

	d, err := s.registry.Upsert(ctx, mac, device.Update{
		Mode:      device.Ptr(mode),
		Reason:    device.ReasonMode,
		MustExist: true,
	})
	if errors.Is(err, device.ErrDeviceNotFound) {
		return device.Device{}, fmt.Errorf("%w: %s", plug.ErrPlugNotFound, mac)
	}
	if err != nil {
		return device.Device{}, err
	}
	s.logger.Info("plug mode changed", "mac", d.MAC, "mode", d.Mode)
	return d, nil
}

// SetPlugSwitch turns a plug relay on or off. Errors are the plug package
// sentinels, so callers can tell a missing plug from an offline or slow one.
func (s *Service) SetPlugSwitch(ctx context.Context, mac string, on bool) (SwitchResult, error) {
	d, err := s.plug(mac)
	if err != nil {
		s.recorder.PlugCommand(outcome(err))
		return SwitchResult{}, err
	}
	if s.switcher == nil || !d.Connected() || d.IPAddress == "" {
		s.recorder.PlugCommand(outcome(plug.ErrPlugNotConnected))
		return SwitchResult{}, fmt.Errorf("%w: %s", plug.ErrPlugNotConnected, d.MAC)
	}

	wasOn, err := s.switcher.SetSwitch(ctx, d.IPAddress, on)
	s.recorder.PlugCommand(outcome(err))
	if err != nil {
		s.logger.Warn("plug switch failed", "mac", d.MAC, "ip", d.IPAddress, "on", on, "error", err)
		return SwitchResult{}, err
	}

	if _, err := s.registry.Upsert(ctx, d.MAC, device.Update{
		SwitchOn:  device.Ptr(on),
		Reason:    device.ReasonSwitch,
		MustExist: true,
	}); err != nil {
		// The relay did switch; only the record is stale.
		s.logger.Warn("recording plug switch state", "mac", d.MAC, "error", err)
	}

	s.logger.Info("plug switched", "mac", d.MAC, "on", on, "was_on", wasOn)
	return SwitchResult{On: on, WasOn: wasOn}, nil
}

// plug returns the plug with the given MAC or ErrPlugNotFound.
func (s *Service) plug(mac string) (device.Device, error) {
	d, err := s.registry.Get(mac)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return device.Device{}, fmt.Errorf("%w: %s", plug.ErrPlugNotFound, mac)
	}
	if err != nil {
		return device.Device{}, err
	}
	if d.Kind != device.KindPlug {
		return device.Device{}, fmt.Errorf("%w: %s is a %s", plug.ErrPlugNotFound, d.MAC, d.Kind)
	}
	return d, nil
}

// outcome maps a plug command error to a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, plug.ErrPlugNotFound):
		return "not_found"
	case errors.Is(err, plug.ErrPlugNotConnected):
		return "not_connected"
	case errors.Is(err, plug.ErrPlugTimeout):
		return "timeout"
	case errors.Is(err, plug.ErrPlugConnectionRefused):
		return "connection_refused"
	default:
		return "unexpected_response"
	}
}
