package risk

import "time"

// Tier adds Penalty to the score when a vital crosses Threshold.
type Tier struct {
	Threshold float64
	Penalty   float64
}

// Band holds the tiers for one vital sign. Upper tiers fire when the reading
// is strictly above the threshold, lower tiers when strictly below. Within a
// band only the first matching tier counts, so tiers must be listed from most
// to least severe.
type Band struct {
	Upper []Tier
	Lower []Tier
}

// penalty returns the contribution of v to the total score.
func (b Band) penalty(v float64) float64 {
	for _, t := range b.Upper {
		if v > t.Threshold {
			return t.Penalty
		}
	}
	for _, t := range b.Lower {
		if v < t.Threshold {
			return t.Penalty
		}
	}
	return 0
}

// Thresholds splits a score in [0,1] into levels. Both comparisons are strict.
type Thresholds struct {
	Critical float64
	Medium   float64
}

// LevelFor maps a score to its level.
func (t Thresholds) LevelFor(score float64) Level {
	switch {
	case score > t.Critical:
		return LevelCritical
	case score > t.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

type Config struct {
	HeartRate   Band
	SpO2        Band
	Temperature Band
	Thresholds  Thresholds
	// Precision is the number of decimals the fallback score is rounded to
	// before it is compared against the thresholds.
	Precision int
	// Timeout bounds a single predictor call.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartRate: Band{
			Upper: []Tier{{Threshold: 110, Penalty: 0.3}, {Threshold: 100, Penalty: 0.15}},
			Lower: []Tier{{Threshold: 50, Penalty: 0.25}},
		},
		SpO2: Band{
			Lower: []Tier{{Threshold: 90, Penalty: 0.4}, {Threshold: 92, Penalty: 0.3}, {Threshold: 95, Penalty: 0.15}},
		},
		Temperature: Band{
			Upper: []Tier{{Threshold: 39, Penalty: 0.3}, {Threshold: 38.5, Penalty: 0.2}},
			Lower: []Tier{{Threshold: 35, Penalty: 0.25}},
		},
		Thresholds: Thresholds{Critical: 0.7, Medium: 0.4},
		Precision:  3,
		Timeout:    5 * time.Second,
	}
}
