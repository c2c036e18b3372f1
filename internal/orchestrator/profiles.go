package orchestrator

import (
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/probe"
)

// ProfileConfig defines which probes a combined check runs and with which
// parameters.
type ProfileConfig struct {
	Probes []string                // probe names, or ["all"]
	Params map[string]probe.Params // per-probe parameter overrides
}

// profiles contains the built-in combined-check presets.
var profiles = map[string]ProfileConfig{
	// quick sticks to catalog reads, no domain table scans.
	"quick": {
		Probes: []string{
			probe.NameDeadlock,
			probe.NameFileSize,
		},
	},
	"standard": {
		Probes: []string{"all"},
	},
	"deep": {
		Probes: []string{"all"},
		Params: map[string]probe.Params{
			probe.NameBatchData: {"hours": 168, "limit": 20},
		},
	},
}

// DefaultProfile is used when a combined check names no profile.
const DefaultProfile = "standard"

// GetProfile returns the profile config for the given name.
func GetProfile(name string) (ProfileConfig, bool) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames returns available profile names.
func ProfileNames() []string {
	return []string{"quick", "standard", "deep"}
}

// ParamsFor returns a copy of the profile's parameters for one probe.
func (p ProfileConfig) ParamsFor(name string) probe.Params {
	out := probe.Params{}
	for k, v := range p.Params[name] {
		out[k] = v
	}
	return out
}

// includes reports whether the profile runs the named probe.
func (p ProfileConfig) includes(name string) bool {
	for _, n := range p.Probes {
		if n == "all" || n == name {
			return true
		}
	}
	return false
}
