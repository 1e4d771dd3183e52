package risk

// Level is the coarse risk classification of a vitals reading.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelCritical Level = "critical"
)

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelCritical:
		return true
	}
	return false
}

// Source records which path produced an Assessment.
type Source string

const (
	SourcePredictor Source = "predictor"
	SourceFallback  Source = "fallback"
)

// Vitals is a single bedside observation.
type Vitals struct {
	HeartRate              float64 `json:"heartRate"`
	SpO2                   float64 `json:"spo2"`
	Temperature            float64 `json:"temperature"`
	BloodPressureSystolic  float64 `json:"bloodPressureSystolic"`
	BloodPressureDiastolic float64 `json:"bloodPressureDiastolic"`
	RespiratoryRate        float64 `json:"respiratoryRate"`
}

// Assessment is the outcome of classifying one Vitals reading.
type Assessment struct {
	Score          float64 `json:"risk_score"`
	Level          Level   `json:"level"`
	Source         Source  `json:"source"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// Prediction is the payload returned by the external predictor.
type Prediction struct {
	RiskScore float64 `json:"risk_score"`
	Level     Level   `json:"level"`
}
