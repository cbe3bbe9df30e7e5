package gates

import (
	"fmt"
	"strings"

	"github.com/quantlabs/signalgate/internal/domain"
)

// Tier weights and decision cutoffs. The essential and important tiers carry
// hard floors: a signal failing either floor is rejected regardless of the
// weighted total.
const (
	essentialWeight = 0.4
	importantWeight = 0.4
	optionalWeight  = 0.2

	essentialFloor = 0.5
	importantFloor = 0.3
	acceptTotal    = 0.4

	// Grace bands for partial credit. A value short of its threshold but
	// inside the band scores 0.5 instead of 0.0. Band membership is
	// inclusive; floor comparisons are strict, so a tier exactly at its
	// floor still passes.
	essentialGrace = 0.70
	importantGrace = 0.80

	// Neutral score for optional checks with no data.
	optionalNeutral = 0.7
)

// CheckResult records one scored quality check for the decision audit trail.
type CheckResult struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Decision is the full outcome of evaluating one signal.
type Decision struct {
	Accepted       bool                `json:"accepted"`
	Reason         string              `json:"reason"`
	Score          float64             `json:"score"`
	EssentialScore float64             `json:"essential_score"`
	ImportantScore float64             `json:"important_score"`
	OptionalScore  float64             `json:"optional_score"`
	Checks         []CheckResult       `json:"checks"`
	ThresholdsUsed domain.ThresholdSet `json:"thresholds_used"`
}

// Evaluator scores feature snapshots against a threshold set using tiered
// partial credit. Stateless and deterministic: safe for concurrent use.
type Evaluator struct{}

// NewEvaluator creates a tiered evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate scores the snapshot against the given thresholds and returns the
// accept/reject decision with component scores and a human-readable reason.
func (e *Evaluator) Evaluate(snap domain.FeatureSnapshot, ts domain.ThresholdSet) Decision {
	d := Decision{ThresholdsUsed: ts}

	if !snap.Side.Valid() {
		d.Reason = fmt.Sprintf("invalid side %q", snap.Side)
		return d
	}

	essential := []CheckResult{
		{
			Name:      "volume_ratio",
			Score:     scoreAtLeast(snap.VolumeRatio, ts.VolumeRatio, essentialGrace),
			Value:     snap.VolumeRatio,
			Threshold: ts.VolumeRatio,
		},
		e.rsiCheck(snap, ts),
	}

	important := []CheckResult{
		{
			Name:      "trend_strength",
			Score:     scoreAtLeast(snap.TrendStr, ts.TrendStrength, importantGrace),
			Value:     snap.TrendStr,
			Threshold: ts.TrendStrength,
		},
		{
			Name:      "quality_score",
			Score:     scoreAtLeast(snap.Quality, ts.QualityScore, importantGrace),
			Value:     snap.Quality,
			Threshold: ts.QualityScore,
		},
	}

	optional := e.optionalChecks(snap, ts)

	d.EssentialScore = tierScore(essential)
	d.ImportantScore = tierScore(important)
	d.OptionalScore = tierScore(optional)
	d.Checks = append(append(essential, important...), optional...)

	if d.EssentialScore < essentialFloor {
		d.Reason = fmt.Sprintf("essential tier %.2f below floor %.2f (%s)",
			d.EssentialScore, essentialFloor, failedNames(essential))
		return d
	}
	if d.ImportantScore < importantFloor {
		d.Reason = fmt.Sprintf("important tier %.2f below floor %.2f (%s)",
			d.ImportantScore, importantFloor, failedNames(important))
		return d
	}

	d.Score = essentialWeight*d.EssentialScore +
		importantWeight*d.ImportantScore +
		optionalWeight*d.OptionalScore
	d.Accepted = d.Score >= acceptTotal

	verdict := "accepted"
	if !d.Accepted {
		verdict = "rejected"
	}
	d.Reason = fmt.Sprintf("%s: total %.2f (essential %.2f, important %.2f, optional %.2f)",
		verdict, d.Score, d.EssentialScore, d.ImportantScore, d.OptionalScore)
	return d
}

// rsiCheck scores RSI against the directionally correct zone: longs want RSI
// at or below the oversold level, shorts at or above the overbought level.
func (e *Evaluator) rsiCheck(snap domain.FeatureSnapshot, ts domain.ThresholdSet) CheckResult {
	if snap.Side == domain.Short {
		return CheckResult{
			Name:      "rsi_overbought",
			Score:     scoreAtLeast(snap.RSI, ts.RSIOverbought, essentialGrace),
			Value:     snap.RSI,
			Threshold: ts.RSIOverbought,
		}
	}
	return CheckResult{
		Name:      "rsi_oversold",
		Score:     scoreAtMost(snap.RSI, ts.RSIOversold, essentialGrace),
		Value:     snap.RSI,
		Threshold: ts.RSIOversold,
	}
}

// optionalChecks are bonus confirmations. Missing data scores the neutral
// value so absent indicators never cause rejection on their own.
func (e *Evaluator) optionalChecks(snap domain.FeatureSnapshot, ts domain.ThresholdSet) []CheckResult {
	momentum := CheckResult{Name: "momentum", Score: optionalNeutral, Threshold: ts.MomentumFloor}
	if snap.Momentum != nil {
		momentum.Value = *snap.Momentum
		momentum.Score = passFail(*snap.Momentum >= ts.MomentumFloor)
	}

	vp := CheckResult{Name: "volume_profile", Score: optionalNeutral, Threshold: 1.0}
	if snap.VolumeProfileOK != nil {
		vp.Score = passFail(*snap.VolumeProfileOK)
		vp.Value = vp.Score
	}

	vwap := CheckResult{Name: "vwap", Score: optionalNeutral, Threshold: 1.0}
	if snap.VWAPOK != nil {
		vwap.Score = passFail(*snap.VWAPOK)
		vwap.Value = vwap.Score
	}

	return []CheckResult{momentum, vp, vwap}
}

// scoreAtLeast gives partial credit on a higher-is-better check: full pass at
// or above threshold, half credit at or above grace*threshold.
func scoreAtLeast(value, threshold, grace float64) float64 {
	if value >= threshold {
		return 1.0
	}
	if value >= threshold*grace {
		return 0.5
	}
	return 0.0
}

// scoreAtMost mirrors scoreAtLeast for lower-is-better checks. The grace band
// extends the threshold upward by the same ratio.
func scoreAtMost(value, threshold, grace float64) float64 {
	if value <= threshold {
		return 1.0
	}
	if grace > 0 && value <= threshold/grace {
		return 0.5
	}
	return 0.0
}

func passFail(ok bool) float64 {
	if ok {
		return 1.0
	}
	return 0.0
}

func tierScore(checks []CheckResult) float64 {
	if len(checks) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, c := range checks {
		sum += c.Score
	}
	return sum / float64(len(checks))
}

func failedNames(checks []CheckResult) string {
	var failed []string
	for _, c := range checks {
		if c.Score == 0.0 {
			failed = append(failed, c.Name)
		}
	}
	if len(failed) == 0 {
		return "partial passes only"
	}
	return "failed: " + strings.Join(failed, ", ")
}
