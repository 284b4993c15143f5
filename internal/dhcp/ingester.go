package dhcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/identity"
)

// Action is a DHCP lease hook action.
type Action string

// Lease actions as reported by dnsmasq.
const (
	ActionAdd Action = "add"
	ActionOld Action = "old"
	ActionDel Action = "del"
)

// Event is one lease notification.
type Event struct {
	Action   Action `json:"action"`
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
}

// Outcome of applying an event.
type Outcome string

// Outcomes.
const (
	OutcomeApplied  Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
)

// Result describes what HandleEvent did.
type Result struct {
	Outcome  Outcome
	Kind     device.Kind
	Hostname string
	Match    identity.Match
	Device   *device.Device
}

// Registry is the subset of device.Registry the ingester mutates.
type Registry interface {
	Get(mac string) (device.Device, error)
	Upsert(ctx context.Context, mac string, u device.Update) (device.Device, error)
}

// Resolver decides which kind, if any, an event belongs to.
type Resolver interface {
	ResolveAny(mac, hostname string, kinds []device.Kind) identity.Resolution
}

// Recorder observes ingested events. Used for metrics.
type Recorder interface {
	DHCPEvent(action, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) DHCPEvent(string, string) {}

// Logger defines the logging interface used by the ingester.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Ingester applies lease events through the identity resolver to the registry.
type Ingester struct {
	registry Registry
	resolver Resolver
	kinds    []device.Kind
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// NewIngester creates an ingester. Kinds are tried in device.Kinds() order.
func NewIngester(registry Registry, resolver Resolver) *Ingester {
	return &Ingester{
		registry: registry,
		resolver: resolver,
		kinds:    device.Kinds(),
		recorder: noopRecorder{},
		logger:   noopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger.
func (i *Ingester) SetLogger(logger Logger) {
	i.logger = logger
}

// SetRecorder sets the metrics recorder.
func (i *Ingester) SetRecorder(r Recorder) {
	i.recorder = r
}

// HandleEvent validates and applies one lease event.
func (i *Ingester) HandleEvent(ctx context.Context, ev Event) (Result, error) {
	action := Action(strings.ToLower(strings.TrimSpace(string(ev.Action))))

	mac, err := device.NormalizeMAC(ev.MAC)
	if err != nil {
		i.recorder.DHCPEvent(string(action), "malformed")
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	var res Result
	switch action {
	case ActionAdd, ActionOld:
		res, err = i.lease(ctx, mac, ev)
	case ActionDel:
		res, err = i.expire(ctx, mac)
	default:
		i.recorder.DHCPEvent(string(action), "malformed")
		return Result{}, fmt.Errorf("%w: unknown action %q", ErrMalformedEvent, ev.Action)
	}
	if err != nil {
		i.recorder.DHCPEvent(string(action), "error")
		return Result{}, err
	}

	i.recorder.DHCPEvent(string(action), string(res.Outcome))
	return res, nil
}

// lease handles add and old.
func (i *Ingester) lease(ctx context.Context, mac string, ev Event) (Result, error) {
	res := i.resolver.ResolveAny(mac, ev.Hostname, i.kinds)
	if !res.Accepted() {
		i.logger.Debug("dhcp event for unrecognised device", "mac", mac, "hostname", ev.Hostname)
		return Result{Outcome: OutcomeRejected, Hostname: res.Hostname}, nil
	}

	u := device.Update{
		Kind:   res.Kind,
		Status: device.Ptr(device.StatusConnected),
		Seen:   i.now(),
		Reason: device.ReasonDHCP,
	}
	if res.Hostname != "" {
		u.Hostname = device.Ptr(res.Hostname)
	}
	if ip := strings.TrimSpace(ev.IP); ip != "" {
		u.IPAddress = device.Ptr(ip)
	}

	d, err := i.registry.Upsert(ctx, mac, u)
	if err != nil {
		return Result{}, fmt.Errorf("applying dhcp %s for %s: %w", ev.Action, mac, err)
	}

	i.logger.Info("dhcp lease applied",
		"action", ev.Action,
		"mac", mac,
		"kind", d.Kind,
		"hostname", d.Hostname,
		"ip", d.IPAddress,
		"match", res.Match.String(),
	)

	return Result{
		Outcome:  OutcomeApplied,
		Kind:     d.Kind,
		Hostname: d.Hostname,
		Match:    res.Match,
		Device:   &d,
	}, nil
}

// expire handles del. Unknown MACs are ignored.
func (i *Ingester) expire(ctx context.Context, mac string) (Result, error) {
	existing, err := i.registry.Get(mac)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return Result{Outcome: OutcomeRejected}, nil
	}
	if err != nil {
		return Result{}, err
	}

	d, err := i.registry.Upsert(ctx, mac, device.Update{
		Status:    device.Ptr(device.StatusDisconnected),
		Reason:    device.ReasonDHCP,
		MustExist: true,
	})
	if errors.Is(err, device.ErrDeviceNotFound) {
		// Removed between Get and Upsert.
		return Result{Outcome: OutcomeRejected}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("applying dhcp del for %s: %w", mac, err)
	}

	i.logger.Info("dhcp lease expired", "mac", mac, "kind", existing.Kind)

	return Result{
		Outcome:  OutcomeApplied,
		Kind:     d.Kind,
		Hostname: d.Hostname,
		Match:    identity.MatchRegistry,
		Device:   &d,
	}, nil
}
