package statefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
)

// Top-level keys owned by this package.
const (
	keyCameras = "cameras"
	keyPlugs   = "plugs"
	keyHistory = "device-history"
)

// sectionKeys maps device kinds to their document section.
var sectionKeys = map[device.Kind]string{
	device.KindCamera: keyCameras,
	device.KindPlug:   keyPlugs,
}

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// SettingsSource supplies the settings written alongside each snapshot.
type SettingsSource interface {
	All() map[device.Kind]settings.Kind
}

type deviceRecord struct {
	MAC       string `yaml:"mac"`
	Hostname  string `yaml:"hostname"`
	IPAddress string `yaml:"ip_address"`
	Status    string `yaml:"status"`
	LastSeen  string `yaml:"last_seen,omitempty"`
	Mode      string `yaml:"mode,omitempty"`
	SwitchOn  *bool  `yaml:"switch_on,omitempty"`
}

type section struct {
	Devices   []deviceRecord      `yaml:"devices"`
	Heartbeat *settings.Heartbeat `yaml:"heartbeat,omitempty"`
	Retention *settings.Retention `yaml:"retention,omitempty"`
}

type historyRecord struct {
	Kind     string `yaml:"kind"`
	Hostname string `yaml:"hostname"`
}

// State is the decoded content of the state file.
type State struct {
	Devices   []device.Device
	History   []device.HistoryEntry
	Heartbeat map[device.Kind]settings.Heartbeat
	Retention map[device.Kind]settings.Retention
}

// Settings overlays the persisted heartbeat and retention settings on
// defaults. Kinds or blocks missing from the file keep their default.
func (st State) Settings(defaults map[device.Kind]settings.Kind) map[device.Kind]settings.Kind {
	out := make(map[device.Kind]settings.Kind, len(defaults))
	for kind, k := range defaults {
		if hb, ok := st.Heartbeat[kind]; ok {
			k.Heartbeat = hb
		}
		if rt, ok := st.Retention[kind]; ok {
			k.Retention = rt
		}
		out[kind] = k
	}
	return out
}

// Store reads and writes the state file. It implements device.Persister.
type Store struct {
	path string

	mu       sync.Mutex
	written  uint64
	extra    map[string]*yaml.Node
	settings SettingsSource
	logger   Logger
}

// New creates a store for the file at path.
func New(path string) *Store {
	return &Store{
		path:   path,
		extra:  make(map[string]*yaml.Node),
		logger: noopLogger{},
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetSettings sets the source of settings written with each snapshot.
func (s *Store) SetSettings(src SettingsSource) {
	s.mu.Lock()
	s.settings = src
	s.mu.Unlock()
}

// Load reads the state file. A missing file yields an empty State.
// Malformed device entries are skipped with a warning; an unparsable
// last_seen is loaded as absent so retention never acts on it.
func (s *Store) Load() (State, error) {
	st := State{
		Heartbeat: make(map[device.Kind]settings.Heartbeat),
		Retention: make(map[device.Kind]settings.Retention),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("state file not found, starting empty", "path", s.path)
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("reading state file: %w", err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return st, fmt.Errorf("parsing state file: %w", err)
	}

	extra := make(map[string]*yaml.Node)
	for key, node := range raw {
		switch key {
		case keyCameras, keyPlugs, keyHistory:
		default:
			n := node
			extra[key] = &n
		}
	}

	for _, kind := range device.Kinds() {
		node, ok := raw[sectionKeys[kind]]
		if !ok {
			continue
		}
		var sec section
		if err := node.Decode(&sec); err != nil {
			return st, fmt.Errorf("parsing %s section: %w", sectionKeys[kind], err)
		}
		if sec.Heartbeat != nil {
			st.Heartbeat[kind] = *sec.Heartbeat
		}
		if sec.Retention != nil {
			st.Retention[kind] = *sec.Retention
		}
		for _, rec := range sec.Devices {
			d, ok := s.decodeDevice(kind, rec)
			if ok {
				st.Devices = append(st.Devices, d)
			}
		}
	}

	if node, ok := raw[keyHistory]; ok {
		var hist map[string]historyRecord
		if err := node.Decode(&hist); err != nil {
			return st, fmt.Errorf("parsing %s: %w", keyHistory, err)
		}
		for mac, rec := range hist {
			entry, ok := s.decodeHistory(mac, rec)
			if ok {
				st.History = append(st.History, entry)
			}
		}
	}

	s.mu.Lock()
	s.extra = extra
	s.mu.Unlock()

	return st, nil
}

func (s *Store) decodeDevice(kind device.Kind, rec deviceRecord) (device.Device, bool) {
	mac, err := device.NormalizeMAC(rec.MAC)
	if err != nil {
		s.logger.Warn("skipping device with invalid mac", "kind", kind, "mac", rec.MAC)
		return device.Device{}, false
	}

	d := device.Device{
		MAC:       mac,
		Kind:      kind,
		Hostname:  rec.Hostname,
		IPAddress: rec.IPAddress,
		Status:    device.StatusDisconnected,
	}
	if status, err := device.ParseStatus(rec.Status); err == nil {
		d.Status = status
	}
	if rec.LastSeen != "" {
		ts, err := time.Parse(time.RFC3339, rec.LastSeen)
		if err != nil {
			s.logger.Warn("unparsable last_seen, treating as absent", "mac", mac, "last_seen", rec.LastSeen)
		} else {
			d.LastSeen = ts.UTC()
		}
	}
	if kind == device.KindPlug {
		d.Mode = device.PlugModeAutomatic
		if mode, err := device.ParsePlugMode(rec.Mode); err == nil {
			d.Mode = mode
		}
		if rec.SwitchOn != nil {
			on := *rec.SwitchOn
			d.SwitchOn = &on
		}
	}
	return d, true
}

func (s *Store) decodeHistory(mac string, rec historyRecord) (device.HistoryEntry, bool) {
	norm, err := device.NormalizeMAC(mac)
	if err != nil {
		s.logger.Warn("skipping history entry with invalid mac", "mac", mac)
		return device.HistoryEntry{}, false
	}
	kind, err := device.ParseKind(rec.Kind)
	if err != nil {
		s.logger.Warn("skipping history entry with invalid kind", "mac", norm, "kind", rec.Kind)
		return device.HistoryEntry{}, false
	}
	return device.HistoryEntry{MAC: norm, Kind: kind, Hostname: rec.Hostname}, true
}

// Persist writes snap unless a newer snapshot was already written.
func (s *Store) Persist(ctx context.Context, snap device.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Generation != 0 && snap.Generation <= s.written {
		s.logger.Debug("skipping stale snapshot", "generation", snap.Generation, "written", s.written)
		return nil
	}

	data, err := yaml.Marshal(s.document(snap))
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}

	s.written = snap.Generation
	return nil
}

// document builds the YAML tree. Caller must hold s.mu.
func (s *Store) document(snap device.Snapshot) map[string]any {
	doc := make(map[string]any, len(s.extra)+3)
	for key, node := range s.extra {
		doc[key] = node
	}

	var current map[device.Kind]settings.Kind
	if s.settings != nil {
		current = s.settings.All()
	}

	sections := make(map[device.Kind]*section, len(sectionKeys))
	for kind := range sectionKeys {
		sec := &section{Devices: []deviceRecord{}}
		if k, ok := current[kind]; ok {
			hb, rt := k.Heartbeat, k.Retention
			sec.Heartbeat = &hb
			sec.Retention = &rt
		}
		sections[kind] = sec
	}

	for _, d := range snap.Devices {
		sec, ok := sections[d.Kind]
		if !ok {
			continue
		}
		sec.Devices = append(sec.Devices, encodeDevice(d))
	}
	for kind, sec := range sections {
		doc[sectionKeys[kind]] = sec
	}

	hist := make(map[string]historyRecord, len(snap.History))
	for _, h := range snap.History {
		hist[h.MAC] = historyRecord{Kind: string(h.Kind), Hostname: h.Hostname}
	}
	doc[keyHistory] = hist

	return doc
}

func encodeDevice(d device.Device) deviceRecord {
	rec := deviceRecord{
		MAC:       d.MAC,
		Hostname:  d.Hostname,
		IPAddress: d.IPAddress,
		Status:    string(d.Status),
		Mode:      string(d.Mode),
		SwitchOn:  d.SwitchOn,
	}
	if !d.LastSeen.IsZero() {
		rec.LastSeen = d.LastSeen.UTC().Format(time.RFC3339)
	}
	return rec
}

// writeAtomic replaces path with data via a temporary file in the same
// directory.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp state file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting state file mode: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
