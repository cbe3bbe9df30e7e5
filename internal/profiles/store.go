package profiles

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quantlabs/signalgate/internal/domain"
)

// Override is an operator-curated partial threshold override for one symbol.
// Nil fields inherit the regime default; present fields win over it.
type Override struct {
	VolumeRatio   *float64 `yaml:"volume_ratio,omitempty"`
	RSIOversold   *float64 `yaml:"rsi_oversold,omitempty"`
	RSIOverbought *float64 `yaml:"rsi_overbought,omitempty"`
	TrendStrength *float64 `yaml:"trend_strength,omitempty"`
	QualityScore  *float64 `yaml:"quality_score,omitempty"`
	MomentumFloor *float64 `yaml:"momentum_floor,omitempty"`
}

// Apply merges the override onto base, returning the merged set. Only present
// keys are replaced.
func (o Override) Apply(base domain.ThresholdSet) domain.ThresholdSet {
	merged := base
	if o.VolumeRatio != nil {
		merged.VolumeRatio = *o.VolumeRatio
	}
	if o.RSIOversold != nil {
		merged.RSIOversold = *o.RSIOversold
	}
	if o.RSIOverbought != nil {
		merged.RSIOverbought = *o.RSIOverbought
	}
	if o.TrendStrength != nil {
		merged.TrendStrength = *o.TrendStrength
	}
	if o.QualityScore != nil {
		merged.QualityScore = *o.QualityScore
	}
	if o.MomentumFloor != nil {
		merged.MomentumFloor = *o.MomentumFloor
	}
	return merged
}

// Store holds static per-symbol overrides. Read-only after construction.
type Store struct {
	overrides map[string]Override
}

// NewStore creates an empty store (no overrides; every symbol uses regime
// defaults).
func NewStore() *Store {
	return &Store{overrides: map[string]Override{}}
}

// NewStoreFromMap creates a store from an in-memory override map (testing and
// embedded defaults).
func NewStoreFromMap(overrides map[string]Override) *Store {
	normalized := make(map[string]Override, len(overrides))
	for symbol, override := range overrides {
		normalized[strings.ToUpper(symbol)] = override
	}
	return &Store{overrides: normalized}
}

// LoadStore reads per-symbol overrides from a YAML file. A missing file is
// not an error: the bot runs fine on regime defaults alone.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(), nil
		}
		return nil, fmt.Errorf("failed to read symbol profiles %s: %w", path, err)
	}

	var raw struct {
		Symbols map[string]Override `yaml:"symbols"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse symbol profiles: %w", err)
	}

	if err := validateOverrides(raw.Symbols); err != nil {
		return nil, fmt.Errorf("invalid symbol profiles: %w", err)
	}

	return NewStoreFromMap(raw.Symbols), nil
}

// validateOverrides rejects override values outside the declared threshold
// bounds so bad operator input fails at startup, not mid-session.
func validateOverrides(overrides map[string]Override) error {
	bounds := domain.DefaultThresholdBounds()
	for symbol, o := range overrides {
		checks := []struct {
			name   string
			value  *float64
			bounds domain.Bounds
		}{
			{"volume_ratio", o.VolumeRatio, bounds.VolumeRatio},
			{"rsi_oversold", o.RSIOversold, bounds.RSIOversold},
			{"rsi_overbought", o.RSIOverbought, bounds.RSIOverbought},
			{"trend_strength", o.TrendStrength, bounds.TrendStrength},
			{"quality_score", o.QualityScore, bounds.QualityScore},
			{"momentum_floor", o.MomentumFloor, bounds.MomentumFloor},
		}
		for _, c := range checks {
			if c.value != nil && !c.bounds.Contains(*c.value) {
				return fmt.Errorf("%s: %s %.4f outside [%.4f, %.4f]",
					symbol, c.name, *c.value, c.bounds.Min, c.bounds.Max)
			}
		}
	}
	return nil
}

// Lookup returns the override for a symbol, if one is curated.
func (s *Store) Lookup(symbol string) (Override, bool) {
	o, ok := s.overrides[strings.ToUpper(symbol)]
	return o, ok
}

// Symbols returns all symbols with curated overrides.
func (s *Store) Symbols() []string {
	symbols := make([]string, 0, len(s.overrides))
	for symbol := range s.overrides {
		symbols = append(symbols, symbol)
	}
	return symbols
}
