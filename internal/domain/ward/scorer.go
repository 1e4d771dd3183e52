package ward

import (
	"math"
	"time"
)

type ScoringWeights struct {
	RoomSuitability float64
	Proximity       float64
	Features        float64
	Isolation       float64
}

// ScoringConfig holds every constant the Scorer uses. Sanitation adjustments
// are added unweighted.
type ScoringConfig struct {
	Weights         ScoringWeights
	RoomSuitability map[Severity]map[RoomType]float64
	ProximityBonus  map[Severity]float64

	VentilatorMatch   float64
	VentilatorMissing float64
	MonitorBonus      float64
	OxygenBonus       float64

	IsolationMatch   float64
	IsolationMissing float64

	FreshWithin  time.Duration
	FreshBonus   float64
	StaleAfter   time.Duration
	StalePenalty float64

	Precision int
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: ScoringWeights{RoomSuitability: 0.30, Proximity: 0.20, Features: 0.25, Isolation: 0.15},
		RoomSuitability: map[Severity]map[RoomType]float64{
			SeverityCritical: {RoomICU: 10, RoomStepDown: 4, RoomIsolation: 8, RoomNormal: 1},
			SeverityWarning:  {RoomICU: 6, RoomStepDown: 8, RoomIsolation: 5, RoomNormal: 4},
			SeverityStable:   {RoomICU: 2, RoomStepDown: 5, RoomIsolation: 3, RoomNormal: 10},
		},
		ProximityBonus:    map[Severity]float64{SeverityCritical: 10, SeverityWarning: 6},
		VentilatorMatch:   10,
		VentilatorMissing: -5,
		MonitorBonus:      3,
		OxygenBonus:       2,
		IsolationMatch:    10,
		IsolationMissing:  -8,
		FreshWithin:       2 * time.Hour,
		FreshBonus:        2,
		StaleAfter:        24 * time.Hour,
		StalePenalty:      -1,
		Precision:         2,
	}
}

// Scorer rates how well a bed fits a patient profile. Higher is better.
type Scorer struct {
	cfg ScoringConfig
	now func() time.Time
}

func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the scorer that reads time from now.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	return &Scorer{cfg: s.cfg, now: now}
}

func (s *Scorer) suitability(sev Severity, rt RoomType) float64 {
	row, ok := s.cfg.RoomSuitability[sev]
	if !ok {
		row = s.cfg.RoomSuitability[SeverityStable]
	}
	return row[rt]
}

func (s *Scorer) Score(b *Bed, p Profile) float64 {
	w := s.cfg.Weights
	score := s.suitability(p.Severity, b.RoomType) * w.RoomSuitability

	if b.Features.NearNursingStation {
		score += s.cfg.ProximityBonus[p.Severity] * w.Proximity
	}

	if p.NeedsVentilator {
		if b.Features.HasVentilator {
			score += s.cfg.VentilatorMatch * w.Features
		} else {
			score += s.cfg.VentilatorMissing * w.Features
		}
	}
	if b.Features.HasMonitor {
		score += s.cfg.MonitorBonus * w.Features
	}
	if b.Features.HasOxygenSupply {
		score += s.cfg.OxygenBonus * w.Features
	}

	if p.NeedsIsolation {
		if b.Features.IsIsolation {
			score += s.cfg.IsolationMatch * w.Isolation
		} else {
			score += s.cfg.IsolationMissing * w.Isolation
		}
	}

	if !b.LastSanitized.IsZero() {
		since := s.now().Sub(b.LastSanitized)
		switch {
		case since < s.cfg.FreshWithin:
			score += s.cfg.FreshBonus
		case since > s.cfg.StaleAfter:
			score += s.cfg.StalePenalty
		}
	}

	p10 := math.Pow(10, float64(s.cfg.Precision))
	return math.Round(score*p10) / p10
}
