package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/config"
)

// ErrInvalid is returned for settings that fail validation.
var ErrInvalid = errors.New("settings: invalid")

// Method is a liveness check method.
type Method string

// Probe methods.
const (
	MethodICMP Method = "icmp"
	MethodTCP  Method = "tcp"
	MethodBoth Method = "both"
)

// Heartbeat configures active probing for one kind. Durations are seconds.
type Heartbeat struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Interval    int    `json:"interval" yaml:"interval"`
	Method      Method `json:"method" yaml:"method"`
	TCPPort     int    `json:"tcp_port" yaml:"tcp_port"`
	TCPTimeout  int    `json:"tcp_timeout" yaml:"tcp_timeout"`
	ICMPTimeout int    `json:"icmp_timeout" yaml:"icmp_timeout"`
}

// IntervalDuration returns Interval as a time.Duration.
func (h Heartbeat) IntervalDuration() time.Duration {
	return time.Duration(h.Interval) * time.Second
}

// TCPTimeoutDuration returns TCPTimeout as a time.Duration.
func (h Heartbeat) TCPTimeoutDuration() time.Duration {
	return time.Duration(h.TCPTimeout) * time.Second
}

// ICMPTimeoutDuration returns ICMPTimeout as a time.Duration.
func (h Heartbeat) ICMPTimeoutDuration() time.Duration {
	return time.Duration(h.ICMPTimeout) * time.Second
}

// Retention configures automatic removal of stale devices for one kind.
type Retention struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Hours   int  `json:"hours" yaml:"hours"`
}

// Kind bundles the settings for one device kind.
type Kind struct {
	Heartbeat Heartbeat `json:"heartbeat" yaml:"heartbeat"`
	Retention Retention `json:"retention" yaml:"retention"`
}

// Validate checks k and returns all problems joined.
func (k Kind) Validate() error {
	var errs []string

	switch Method(strings.ToLower(string(k.Heartbeat.Method))) {
	case MethodICMP, MethodTCP, MethodBoth:
	default:
		errs = append(errs, fmt.Sprintf("heartbeat.method %q must be icmp, tcp or both", k.Heartbeat.Method))
	}
	if k.Heartbeat.Interval < 1 {
		errs = append(errs, "heartbeat.interval must be at least 1 second")
	}
	if k.Heartbeat.TCPPort < 1 || k.Heartbeat.TCPPort > 65535 {
		errs = append(errs, "heartbeat.tcp_port must be between 1 and 65535")
	}
	if k.Heartbeat.TCPTimeout < 1 {
		errs = append(errs, "heartbeat.tcp_timeout must be at least 1 second")
	}
	if k.Heartbeat.ICMPTimeout < 1 {
		errs = append(errs, "heartbeat.icmp_timeout must be at least 1 second")
	}
	if k.Retention.Hours < 1 {
		errs = append(errs, "retention.hours must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Normalized returns k with the method lowercased.
func (k Kind) Normalized() Kind {
	k.Heartbeat.Method = Method(strings.ToLower(string(k.Heartbeat.Method)))
	return k
}

// FromConfig converts probe defaults from config.yaml.
func FromConfig(p config.ProbeDefaults) Kind {
	return Kind{
		Heartbeat: Heartbeat{
			Enabled:     p.Enabled,
			Interval:    p.Interval,
			Method:      Method(strings.ToLower(p.Method)),
			TCPPort:     p.TCPPort,
			TCPTimeout:  p.TCPTimeout,
			ICMPTimeout: p.ICMPTimeout,
		},
		Retention: Retention{
			Enabled: p.RetentionOn,
			Hours:   p.RetentionHours,
		},
	}
}

// Defaults builds per-kind settings from the heartbeat config section.
func Defaults(cfg config.HeartbeatConfig) map[device.Kind]Kind {
	return map[device.Kind]Kind{
		device.KindCamera: FromConfig(cfg.Camera),
		device.KindPlug:   FromConfig(cfg.Plug),
	}
}

// Store is the live settings table. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	kinds    map[device.Kind]Kind
	onChange []func(device.Kind, Kind)
}

// NewStore creates a store seeded with defaults.
func NewStore(defaults map[device.Kind]Kind) *Store {
	kinds := make(map[device.Kind]Kind, len(defaults))
	for k, v := range defaults {
		kinds[k] = v.Normalized()
	}
	return &Store{kinds: kinds}
}

// OnChange registers fn to run after every successful Set, outside the lock.
func (s *Store) OnChange(fn func(device.Kind, Kind)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Get returns the settings for kind.
func (s *Store) Get(kind device.Kind) (Kind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.kinds[kind]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", device.ErrInvalidKind, kind)
	}
	return k, nil
}

// Set validates and stores settings for kind.
func (s *Store) Set(kind device.Kind, k Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", device.ErrInvalidKind, kind)
	}
	k = k.Normalized()
	if err := k.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.kinds[kind] = k
	listeners := append([]func(device.Kind, Kind){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(kind, k)
	}
	return nil
}

// Load replaces stored settings without notifying listeners. Invalid
// entries are skipped and reported.
func (s *Store) Load(kinds map[device.Kind]Kind) error {
	var errs []error

	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, k := range kinds {
		k = k.Normalized()
		if err := k.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		s.kinds[kind] = k
	}
	return errors.Join(errs...)
}

// All returns a copy of every kind's settings.
func (s *Store) All() map[device.Kind]Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[device.Kind]Kind, len(s.kinds))
	for k, v := range s.kinds {
		out[k] = v
	}
	return out
}
