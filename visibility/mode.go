// Package visibility classifies tracked objects as visible or culled for one camera snapshot.
package visibility

import (
	"strings"

	"github.com/pkg/errors"
)

// Mode selects how aggressively objects are culled.
type Mode int

// The supported culling modes, from no culling to the most aggressive.
const (
	Disabled Mode = iota
	Conservative
	Normal
	Aggressive
)

// Modes lists every mode in increasing order of aggressiveness.
var Modes = []Mode{Disabled, Conservative, Normal, Aggressive}

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Conservative:
		return "conservative"
	case Normal:
		return "normal"
	case Aggressive:
		return "aggressive"
	}
	return "unknown"
}

// ParseMode returns the mode with the given name, ignoring case.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return Disabled, errors.Errorf("unknown culling mode %q", s)
}

// MarshalText encodes the mode as its name.
func (m Mode) MarshalText() ([]byte, error) {
	if m < Disabled || m > Aggressive {
		return nil, errors.Errorf("unknown culling mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ModeConfig holds the parameters a mode culls with.
type ModeConfig struct {
	MaxDistance      float64 `json:"max_distance"`
	OcclusionCulling bool    `json:"occlusion_culling"`
}

// DefaultModeConfigs returns the distance limits and occlusion settings of each culling mode.
// Disabled has no entry since it never culls.
func DefaultModeConfigs() map[Mode]ModeConfig {
	return map[Mode]ModeConfig{
		Conservative: {MaxDistance: 100, OcclusionCulling: false},
		Normal:       {MaxDistance: 50, OcclusionCulling: true},
		Aggressive:   {MaxDistance: 30, OcclusionCulling: true},
	}
}
