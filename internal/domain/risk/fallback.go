package risk

import "math"

// RuleScorer computes a risk score from fixed vital-sign bands. It is used
// whenever the external predictor cannot answer.
type RuleScorer struct {
	cfg Config
}

func NewRuleScorer(cfg Config) *RuleScorer {
	return &RuleScorer{cfg: cfg}
}

// Score sums the band penalties, clamps the total into [0,1] and rounds it
// to the configured precision.
func (r *RuleScorer) Score(v Vitals) float64 {
	total := r.cfg.HeartRate.penalty(v.HeartRate) +
		r.cfg.SpO2.penalty(v.SpO2) +
		r.cfg.Temperature.penalty(v.Temperature)
	return roundTo(clamp01(total), r.cfg.Precision)
}

// Assess scores v and derives its level. The rounded score is what gets
// compared, so 0.3 + 0.4 lands on exactly 0.7 and stays medium.
func (r *RuleScorer) Assess(v Vitals) Assessment {
	score := r.Score(v)
	return Assessment{
		Score:  score,
		Level:  r.cfg.Thresholds.LevelFor(score),
		Source: SourceFallback,
	}
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
