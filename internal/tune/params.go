package tune

import "github.com/quantlabs/signalgate/internal/domain"

// Direction states which way a parameter moves when the system tightens.
type Direction int

const (
	// TightenUp parameters get stricter as they grow (score floors, minimum
	// volume). Tightening multiplies by the factor.
	TightenUp Direction = iota
	// TightenDown parameters get stricter as they shrink (band-width caps,
	// volatility ceilings). Tightening divides by the factor.
	TightenDown
)

// ParamSpec declares one tunable parameter: its operator-approved range,
// default, and tightening direction. The range lives with the schema so every
// adjustment site clamps against the same source of truth. Integer parameters
// (counts) round to the nearest whole value after adjustment.
type ParamSpec struct {
	Bounds    domain.Bounds
	Default   float64
	Direction Direction
	Integer   bool
}

// Params is a named parameter vector. Copied by value between components;
// never shared mutable.
type Params map[string]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Registry returns the fixed set of tunable parameters.
func Registry() map[string]ParamSpec {
	return map[string]ParamSpec{
		"min_score": {
			Bounds:    domain.Bounds{Min: 0.50, Max: 0.90},
			Default:   0.65,
			Direction: TightenUp,
		},
		"adx_min": {
			Bounds:    domain.Bounds{Min: 15.0, Max: 35.0},
			Default:   20.0,
			Direction: TightenUp,
		},
		"bb_width_max": {
			Bounds:    domain.Bounds{Min: 0.03, Max: 0.12},
			Default:   0.08,
			Direction: TightenDown,
		},
		"volume_ratio_min": {
			Bounds:    domain.Bounds{Min: 0.30, Max: 1.20},
			Default:   0.50,
			Direction: TightenUp,
		},
		"confluence_required": {
			Bounds:    domain.Bounds{Min: 2.0, Max: 5.0},
			Default:   3.0,
			Direction: TightenUp,
			Integer:   true,
		},
		"volatility_min": {
			Bounds:    domain.Bounds{Min: 0.005, Max: 0.030},
			Default:   0.010,
			Direction: TightenUp,
		},
		"volatility_max": {
			Bounds:    domain.Bounds{Min: 0.050, Max: 0.150},
			Default:   0.100,
			Direction: TightenDown,
		},
	}
}

// DefaultParams returns the registry defaults as a parameter vector.
func DefaultParams() Params {
	registry := Registry()
	p := make(Params, len(registry))
	for name, spec := range registry {
		p[name] = spec.Default
	}
	return p
}

// InRange reports whether every known parameter sits inside its declared
// bounds. Unknown keys fail validation.
func (p Params) InRange() bool {
	registry := Registry()
	for name, v := range p {
		spec, ok := registry[name]
		if !ok || !spec.Bounds.Contains(v) {
			return false
		}
	}
	return true
}
