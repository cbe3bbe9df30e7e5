package domain

import "math"

// ThresholdSet is the merged collection of decision thresholds used for one
// evaluation. Every produced set is clamped into DefaultThresholdBounds
// before use.
type ThresholdSet struct {
	VolumeRatio   float64 `json:"volume_ratio" yaml:"volume_ratio"`
	RSIOversold   float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	TrendStrength float64 `json:"trend_strength" yaml:"trend_strength"`
	QualityScore  float64 `json:"quality_score" yaml:"quality_score"`
	MomentumFloor float64 `json:"momentum_floor" yaml:"momentum_floor"`
}

// Bounds declares the operator-approved [min,max] range for one threshold.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Clamp restricts v into the declared range.
func (b Bounds) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return b.Min
	}
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains reports whether v lies within the declared range.
func (b Bounds) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= b.Min && v <= b.Max
}

// ThresholdBounds attaches a declared range to every ThresholdSet field so
// clamping lives with the schema instead of being re-derived at call sites.
type ThresholdBounds struct {
	VolumeRatio   Bounds `yaml:"volume_ratio"`
	RSIOversold   Bounds `yaml:"rsi_oversold"`
	RSIOverbought Bounds `yaml:"rsi_overbought"`
	TrendStrength Bounds `yaml:"trend_strength"`
	QualityScore  Bounds `yaml:"quality_score"`
	MomentumFloor Bounds `yaml:"momentum_floor"`
}

// DefaultThresholdBounds returns the production ranges for all tunable
// thresholds.
func DefaultThresholdBounds() ThresholdBounds {
	return ThresholdBounds{
		VolumeRatio:   Bounds{Min: 0.1, Max: 1.5},
		RSIOversold:   Bounds{Min: 15.0, Max: 40.0},
		RSIOverbought: Bounds{Min: 60.0, Max: 85.0},
		TrendStrength: Bounds{Min: 0.2, Max: 0.9},
		QualityScore:  Bounds{Min: 0.5, Max: 0.9},
		MomentumFloor: Bounds{Min: -5.0, Max: 5.0},
	}
}

// Clamp returns a copy of the set with every field forced into its declared
// range.
func (ts ThresholdSet) Clamp(bounds ThresholdBounds) ThresholdSet {
	return ThresholdSet{
		VolumeRatio:   bounds.VolumeRatio.Clamp(ts.VolumeRatio),
		RSIOversold:   bounds.RSIOversold.Clamp(ts.RSIOversold),
		RSIOverbought: bounds.RSIOverbought.Clamp(ts.RSIOverbought),
		TrendStrength: bounds.TrendStrength.Clamp(ts.TrendStrength),
		QualityScore:  bounds.QualityScore.Clamp(ts.QualityScore),
		MomentumFloor: bounds.MomentumFloor.Clamp(ts.MomentumFloor),
	}
}

// InBounds reports whether every field already lies within its declared range.
func (ts ThresholdSet) InBounds(bounds ThresholdBounds) bool {
	return bounds.VolumeRatio.Contains(ts.VolumeRatio) &&
		bounds.RSIOversold.Contains(ts.RSIOversold) &&
		bounds.RSIOverbought.Contains(ts.RSIOverbought) &&
		bounds.TrendStrength.Contains(ts.TrendStrength) &&
		bounds.QualityScore.Contains(ts.QualityScore) &&
		bounds.MomentumFloor.Contains(ts.MomentumFloor)
}
