package monitoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/icuward/internal/domain/risk"
	"github.com/ehr/icuward/internal/domain/ward"
	"github.com/ehr/icuward/internal/platform/events"
)

// PatientDirectory is the part of the ward service that ingestion depends
// on.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*ward.Patient, error)
	ListPatients(ctx context.Context, f ward.PatientFilter, limit, offset int) ([]*ward.Patient, int, error)
	RecordRisk(ctx context.Context, id uuid.UUID, score float64) (*ward.Patient, error)
}

type Classifier interface {
	Classify(ctx context.Context, v risk.Vitals) risk.Assessment
}

// Abnormal-vital cutoffs named in critical alert messages.
const (
	alertHeartRate   = 110
	alertSpO2        = 92
	alertTemperature = 38.5
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
	DefaultAlertLimit   = 50
	RecentAlertLimit    = 5
)

type Service struct {
	vitals     VitalsRepository
	alerts     AlertRepository
	patients   PatientDirectory
	classifier Classifier
	events     events.Publisher
	thresholds risk.Thresholds
	now        func() time.Time
}

func NewService(vitals VitalsRepository, alerts AlertRepository, patients PatientDirectory, classifier Classifier) *Service {
	return &Service{
		vitals:     vitals,
		alerts:     alerts,
		patients:   patients,
		classifier: classifier,
		events:     events.Nop(),
		thresholds: risk.DefaultConfig().Thresholds,
		now:        time.Now,
	}
}

func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.events = p
	}
}

// SetThresholds overrides the score boundaries at which alerts are raised.
func (s *Service) SetThresholds(t risk.Thresholds) {
	s.thresholds = t
}

func (s *Service) publish(ctx context.Context, typ, topic string, patientID uuid.UUID, resourceType, id string, data interface{}) {
	_ = s.events.Publish(ctx, events.New(typ, topic, resourceType, id, data))
	_ = s.events.Publish(ctx, events.New(typ, events.PatientTopic(patientID.String()), resourceType, id, data))
}

type vitalRange struct {
	name     string
	value    *float64
	min, max float64
	required bool
	fallback float64
}

func valueOr(p *float64, d float64) float64 {
	if p == nil {
		return d
	}
	return *p
}

// normalize validates the input and fills in resting defaults.
func normalize(in VitalsInput) (risk.Vitals, error) {
	if in.PatientID == uuid.Nil {
		return risk.Vitals{}, fmt.Errorf("%w: patient_id is required", ward.ErrValidation)
	}
	checks := []vitalRange{
		{name: "heart_rate", value: in.HeartRate, min: 0, max: 300, required: true},
		{name: "spo2", value: in.SpO2, min: 0, max: 100, required: true},
		{name: "temperature", value: in.Temperature, min: 30, max: 45, required: true},
		{name: "blood_pressure_systolic", value: in.BloodPressureSystolic, min: 0, max: 300, fallback: DefaultSystolic},
		{name: "blood_pressure_diastolic", value: in.BloodPressureDiastolic, min: 0, max: 200, fallback: DefaultDiastolic},
		{name: "respiratory_rate", value: in.RespiratoryRate, min: 0, max: 60, fallback: DefaultRespiratoryRate},
	}
	for _, c := range checks {
		if c.value == nil {
			if c.required {
				return risk.Vitals{}, fmt.Errorf("%w: %s is required", ward.ErrValidation, c.name)
			}
			continue
		}
		v := *c.value
		if math.IsNaN(v) || v < c.min || v > c.max {
			return risk.Vitals{}, fmt.Errorf("%w: %s must be between %g and %g", ward.ErrValidation, c.name, c.min, c.max)
		}
	}
	return risk.Vitals{
		HeartRate:              *in.HeartRate,
		SpO2:                   *in.SpO2,
		Temperature:            *in.Temperature,
		BloodPressureSystolic:  valueOr(in.BloodPressureSystolic, DefaultSystolic),
		BloodPressureDiastolic: valueOr(in.BloodPressureDiastolic, DefaultDiastolic),
		RespiratoryRate:        valueOr(in.RespiratoryRate, DefaultRespiratoryRate),
	}, nil
}

type IngestResult struct {
	Reading *VitalsReading `json:"vitals"`
	Patient *ward.Patient  `json:"patient"`
	Alert   *Alert         `json:"alert,omitempty"`
}

// Ingest classifies a reading, updates the patient's risk, stores the
// reading and raises an alert when the score crosses a threshold.
func (s *Service) Ingest(ctx context.Context, in VitalsInput) (*IngestResult, error) {
	v, err := normalize(in)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.GetPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.Status == ward.SeverityDischarged {
		return nil, fmt.Errorf("%w: patient %s is discharged", ward.ErrValidation, patient.ID)
	}

	assessment := s.classifier.Classify(ctx, v)
	at := s.now().UTC()
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		at = in.Timestamp.UTC()
	}
	reading := &VitalsReading{
		ID:                     uuid.New(),
		PatientID:              patient.ID,
		HeartRate:              v.HeartRate,
		SpO2:                   v.SpO2,
		Temperature:            v.Temperature,
		BloodPressureSystolic:  v.BloodPressureSystolic,
		BloodPressureDiastolic: v.BloodPressureDiastolic,
		RespiratoryRate:        v.RespiratoryRate,
		RiskScore:              assessment.Score,
		RiskLevel:              assessment.Level,
		RiskSource:             assessment.Source,
		Timestamp:              at,
	}
	// Risk is recorded first so a failed update leaves no orphan reading.
	// Recording the same score again on retry is harmless.
	updated, err := s.patients.RecordRisk(ctx, patient.ID, assessment.Score)
	if err != nil {
		return nil, err
	}
	if err := s.vitals.Append(ctx, reading); err != nil {
		return nil, err
	}
	res := &IngestResult{Reading: reading, Patient: updated}

	if alert := s.alertFor(updated, reading); alert != nil {
		if err := s.alerts.Create(ctx, alert); err != nil {
			return nil, err
		}
		res.Alert = alert
		s.publish(ctx, events.AlertRaised, events.TopicAlerts, patient.ID, "Alert", alert.ID.String(), alert)
	}

	s.publish(ctx, events.VitalsUpdated, events.TopicVitals, patient.ID, "VitalsReading", reading.ID.String(), VitalsUpdate{
		PatientID:   patient.ID,
		PatientName: updated.Name,
		BedNumber:   updated.BedNumber,
		Vitals:      reading,
		RiskScore:   reading.RiskScore,
		RiskLevel:   reading.RiskLevel,
	})
	return res, nil
}

func bedLabel(n *int) string {
	if n == nil {
		return "no bed"
	}
	return fmt.Sprintf("Bed %d", *n)
}

// alertFor returns the alert a reading warrants, or nil below the medium
// threshold.
func (s *Service) alertFor(p *ward.Patient, r *VitalsReading) *Alert {
	var severity AlertSeverity
	var typ AlertType
	var detail string
	switch s.thresholds.LevelFor(r.RiskScore) {
	case risk.LevelCritical:
		severity, typ = AlertCritical, AlertVitals
		var parts []string
		if r.HeartRate > alertHeartRate {
			parts = append(parts, fmt.Sprintf("Critical HR: %g bpm", r.HeartRate))
		}
		if r.SpO2 < alertSpO2 {
			parts = append(parts, fmt.Sprintf("Low SpO2: %g%%", r.SpO2))
		}
		if r.Temperature > alertTemperature {
			parts = append(parts, fmt.Sprintf("High Temp: %g°C", r.Temperature))
		}
		detail = strings.Join(parts, ", ")
		if detail == "" {
			detail = fmt.Sprintf("High risk detected (score %.2f)", r.RiskScore)
		}
	case risk.LevelMedium:
		severity, typ = AlertMedium, AlertRisk
		detail = "Moderate risk - monitoring closely"
	default:
		return nil
	}
	return &Alert{
		ID:          uuid.New(),
		PatientID:   p.ID,
		PatientName: p.Name,
		BedNumber:   p.BedNumber,
		Message:     fmt.Sprintf("%s (%s): %s", p.Name, bedLabel(p.BedNumber), detail),
		Severity:    severity,
		Type:        typ,
		Time:        r.Timestamp,
	}
}

// History returns a patient's most recent readings in chronological order.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsReading, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	items, err := s.vitals.History(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	if items == nil {
		items = []*VitalsReading{}
	}
	return items, nil
}

// LatestAll returns the most recent reading of every active patient.
func (s *Service) LatestAll(ctx context.Context) ([]LatestVitals, error) {
	patients, _, err := s.patients.ListPatients(ctx, ward.PatientFilter{Active: true}, 0, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(patients))
	for i, p := range patients {
		ids[i] = p.ID
	}
	latest, err := s.vitals.Latest(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]LatestVitals, 0, len(patients))
	for _, p := range patients {
		out = append(out, LatestVitals{Patient: p, Vitals: latest[p.ID]})
	}
	return out, nil
}

func (s *Service) ListAlerts(ctx context.Context, f AlertFilter, limit int) ([]*Alert, error) {
	if f.Severity != "" && !f.Severity.Valid() {
		return nil, fmt.Errorf("%w: invalid severity %q", ward.ErrValidation, f.Severity)
	}
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	items, err := s.alerts.List(ctx, f, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Alert{}
	}
	return items, nil
}

func (s *Service) RecentAlerts(ctx context.Context) ([]*Alert, error) {
	return s.ListAlerts(ctx, AlertFilter{}, RecentAlertLimit)
}

// Acknowledge marks an alert acknowledged by the given user. Repeating it
// returns the alert as first acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*Alert, error) {
	if strings.TrimSpace(by) == "" {
		by = "unknown"
	}
	a, changed, err := s.alerts.Acknowledge(ctx, id, by, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, events.AlertAcknowledged, events.TopicAlerts, a.PatientID, "Alert", a.ID.String(), a)
	}
	return a, nil
}
