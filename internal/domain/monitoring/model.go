package monitoring

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/icuward/internal/domain/risk"
	"github.com/ehr/icuward/internal/domain/ward"
)

// VitalsReading maps to the vitals_reading table. Readings are append-only.
type VitalsReading struct {
	ID                     uuid.UUID   `db:"id" json:"id"`
	PatientID              uuid.UUID   `db:"patient_id" json:"patient_id"`
	HeartRate              float64     `db:"heart_rate" json:"heart_rate"`
	SpO2                   float64     `db:"spo2" json:"spo2"`
	Temperature            float64     `db:"temperature" json:"temperature"`
	BloodPressureSystolic  float64     `db:"bp_systolic" json:"blood_pressure_systolic"`
	BloodPressureDiastolic float64     `db:"bp_diastolic" json:"blood_pressure_diastolic"`
	RespiratoryRate        float64     `db:"respiratory_rate" json:"respiratory_rate"`
	RiskScore              float64     `db:"risk_score" json:"risk_score"`
	RiskLevel              risk.Level  `db:"risk_level" json:"risk_level"`
	RiskSource             risk.Source `db:"risk_source" json:"risk_source"`
	Timestamp              time.Time   `db:"recorded_at" json:"timestamp"`
}

// Vitals returns the classifier input carried by the reading.
func (v *VitalsReading) Vitals() risk.Vitals {
	return risk.Vitals{
		HeartRate:              v.HeartRate,
		SpO2:                   v.SpO2,
		Temperature:            v.Temperature,
		BloodPressureSystolic:  v.BloodPressureSystolic,
		BloodPressureDiastolic: v.BloodPressureDiastolic,
		RespiratoryRate:        v.RespiratoryRate,
	}
}

// VitalsInput is an incoming observation. Heart rate, SpO2 and temperature
// are required; the remaining vitals fall back to resting defaults.
type VitalsInput struct {
	PatientID              uuid.UUID  `json:"patient_id"`
	HeartRate              *float64   `json:"heart_rate"`
	SpO2                   *float64   `json:"spo2"`
	Temperature            *float64   `json:"temperature"`
	BloodPressureSystolic  *float64   `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *float64   `json:"blood_pressure_diastolic,omitempty"`
	RespiratoryRate        *float64   `json:"respiratory_rate,omitempty"`
	Timestamp              *time.Time `json:"timestamp,omitempty"`
}

const (
	DefaultSystolic        = 120
	DefaultDiastolic       = 80
	DefaultRespiratoryRate = 16
)

type AlertSeverity string

const (
	AlertLow      AlertSeverity = "low"
	AlertMedium   AlertSeverity = "medium"
	AlertCritical AlertSeverity = "critical"
)

func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertLow, AlertMedium, AlertCritical:
		return true
	}
	return false
}

type AlertType string

const (
	AlertVitals AlertType = "vitals"
	AlertRisk   AlertType = "risk"
	AlertBed    AlertType = "bed"
	AlertSystem AlertType = "system"
)

// Alert maps to the alert table. Once Acknowledged is set it is never
// cleared.
type Alert struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	PatientID      uuid.UUID     `db:"patient_id" json:"patient_id"`
	PatientName    string        `db:"patient_name" json:"patient_name,omitempty"`
	BedNumber      *int          `db:"bed_number" json:"bed_number,omitempty"`
	Message        string        `db:"message" json:"message"`
	Severity       AlertSeverity `db:"severity" json:"severity"`
	Type           AlertType     `db:"type" json:"type"`
	Acknowledged   bool          `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy string        `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time    `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	Time           time.Time     `db:"raised_at" json:"time"`
}

type AlertFilter struct {
	Severity     AlertSeverity
	Acknowledged *bool
	PatientID    *uuid.UUID
}

// VitalsUpdate is the payload broadcast after each ingested reading.
type VitalsUpdate struct {
	PatientID   uuid.UUID      `json:"patient_id"`
	PatientName string         `json:"patient_name"`
	BedNumber   *int           `json:"bed_number,omitempty"`
	Vitals      *VitalsReading `json:"vitals"`
	RiskScore   float64        `json:"risk_score"`
	RiskLevel   risk.Level     `json:"risk_level"`
}

// LatestVitals pairs an active patient with their most recent reading, which
// is nil when none has been recorded yet.
type LatestVitals struct {
	Patient *ward.Patient  `json:"patient"`
	Vitals  *VitalsReading `json:"vitals"`
}
