package identity

import (
	"strings"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

// Match says which strategy accepted a resolution.
type Match int

// Resolution outcomes, in priority order.
const (
	Unmatched Match = iota
	MatchPattern
	MatchRegistry
	MatchHistory
)

func (m Match) String() string {
	switch m {
	case MatchPattern:
		return "pattern"
	case MatchRegistry:
		return "registry"
	case MatchHistory:
		return "history"
	default:
		return "unmatched"
	}
}

// Resolution is the tagged result of Resolve.
type Resolution struct {
	Match    Match
	Kind     device.Kind
	MAC      string
	Hostname string
}

// Accepted reports whether any strategy matched.
func (r Resolution) Accepted() bool {
	return r.Match != Unmatched
}

// Lookup is the registry view the resolver needs.
type Lookup interface {
	Get(mac string) (device.Device, error)
	History(mac string) (device.HistoryEntry, bool)
}

// Patterns maps each kind to its case-insensitive hostname prefixes.
type Patterns map[device.Kind][]string

// request carries one resolution through the strategy chain.
type request struct {
	mac      string
	hostname string
	kind     device.Kind
}

// strategy returns a non-Unmatched Resolution when it accepts req.
type strategy func(req request) Resolution

// Resolver resolves device identity. Safe for concurrent use; patterns are
// fixed at construction.
type Resolver struct {
	lookup   Lookup
	patterns Patterns
	chain    []strategy
}

// NewResolver builds a resolver over lookup with the given hostname patterns.
func NewResolver(lookup Lookup, patterns Patterns) *Resolver {
	r := &Resolver{
		lookup:   lookup,
		patterns: normalisePatterns(patterns),
	}
	r.chain = []strategy{r.byPattern, r.byRegistry, r.byHistory}
	return r
}

func normalisePatterns(in Patterns) Patterns {
	out := make(Patterns, len(in))
	for kind, prefixes := range in {
		for _, p := range prefixes {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				out[kind] = append(out[kind], p)
			}
		}
	}
	return out
}

// Resolve classifies (mac, hostname) against kind. mac must already be
// normalised.
func (r *Resolver) Resolve(mac, hostname string, kind device.Kind) Resolution {
	req := request{mac: mac, hostname: strings.TrimSpace(hostname), kind: kind}

	for _, s := range r.chain {
		res := s(req)
		if res.Accepted() {
			res.Hostname = r.effectiveHostname(req, res.Hostname)
			return res
		}
	}

	return Resolution{Match: Unmatched, MAC: mac, Hostname: req.hostname}
}

// ResolveAny tries kinds in order and returns the first accepted resolution.
func (r *Resolver) ResolveAny(mac, hostname string, kinds []device.Kind) Resolution {
	for _, kind := range kinds {
		if res := r.Resolve(mac, hostname, kind); res.Accepted() {
			return res
		}
	}
	return Resolution{Match: Unmatched, MAC: mac, Hostname: strings.TrimSpace(hostname)}
}

// MatchesPattern reports whether hostname carries a known prefix for kind.
func (r *Resolver) MatchesPattern(hostname string, kind device.Kind) bool {
	h := strings.ToLower(strings.TrimSpace(hostname))
	if device.IsPlaceholderHostname(h) {
		return false
	}
	for _, p := range r.patterns[kind] {
		if strings.HasPrefix(h, p) {
			return true
		}
	}
	return false
}

func (r *Resolver) byPattern(req request) Resolution {
	if !r.MatchesPattern(req.hostname, req.kind) {
		return Resolution{}
	}
	return Resolution{Match: MatchPattern, Kind: req.kind, MAC: req.mac, Hostname: req.hostname}
}

func (r *Resolver) byRegistry(req request) Resolution {
	d, err := r.lookup.Get(req.mac)
	if err != nil || d.Kind != req.kind {
		return Resolution{}
	}
	return Resolution{Match: MatchRegistry, Kind: req.kind, MAC: req.mac, Hostname: req.hostname}
}

func (r *Resolver) byHistory(req request) Resolution {
	h, ok := r.lookup.History(req.mac)
	if !ok || h.Kind != req.kind {
		return Resolution{}
	}
	return Resolution{Match: MatchHistory, Kind: req.kind, MAC: req.mac, Hostname: req.hostname}
}

// effectiveHostname replaces an empty or placeholder hostname with the
// registry value, then the history value.
func (r *Resolver) effectiveHostname(req request, hostname string) string {
	if !device.IsPlaceholderHostname(hostname) {
		return hostname
	}
	if d, err := r.lookup.Get(req.mac); err == nil && !device.IsPlaceholderHostname(d.Hostname) {
		return d.Hostname
	}
	if h, ok := r.lookup.History(req.mac); ok && !device.IsPlaceholderHostname(h.Hostname) {
		return h.Hostname
	}
	return ""
}
