// Package sandbox loads a demonstration ward: a fixed bed inventory, the
// patients lying in it, an hour of vitals history and a handful of open
// alerts. It backs the seed command and the development seed endpoint.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/icuward/internal/domain/monitoring"
	"github.com/ehr/icuward/internal/domain/risk"
	"github.com/ehr/icuward/internal/domain/ward"
	"github.com/ehr/icuward/internal/platform/auth"
)

// Ward is the subset of the ward service the seeder writes through.
type Ward interface {
	ListBeds(ctx context.Context, f ward.BedFilter) ([]*ward.Bed, error)
	CreateBed(ctx context.Context, b *ward.Bed) error
	Admit(ctx context.Context, p *ward.Patient, bedNumber *int) (*ward.Patient, error)
}

// Generator draws a plausible reading for a patient status.
type Generator interface {
	Generate(status ward.Severity) risk.Vitals
}

type SeedResult struct {
	Beds     int `json:"beds"`
	Patients int `json:"patients"`
	Readings int `json:"readings"`
	Alerts   int `json:"alerts"`
}

// History shape: one reading every five minutes for the last hour.
const (
	historyReadings = 12
	historyInterval = 5 * time.Minute
)

type Seeder struct {
	ward       Ward
	vitals     monitoring.VitalsRepository
	alerts     monitoring.AlertRepository
	classifier monitoring.Classifier
	generator  Generator
	now        func() time.Time
}

func NewSeeder(w Ward, vitals monitoring.VitalsRepository, alerts monitoring.AlertRepository,
	classifier monitoring.Classifier, generator Generator) *Seeder {
	return &Seeder{
		ward:       w,
		vitals:     vitals,
		alerts:     alerts,
		classifier: classifier,
		generator:  generator,
		now:        time.Now,
	}
}

// Seed loads the demonstration ward. It refuses to run against a store that
// already has beds.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	existing, err := s.ward.ListBeds(ctx, ward.BedFilter{})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: ward already has %d beds", ward.ErrConflict, len(existing))
	}

	now := s.now()
	result := &SeedResult{}
	for _, b := range sampleBeds() {
		b.LastSanitized = now
		if err := s.ward.CreateBed(ctx, b); err != nil {
			return result, fmt.Errorf("seed bed %d: %w", b.BedNumber, err)
		}
		result.Beds++
	}

	admitted := make([]*ward.Patient, 0, len(samplePatients))
	for _, sp := range samplePatients {
		p := sp.patient
		p.AdmissionDate = now.Add(-historyReadings * historyInterval)
		bed := sp.bed
		created, err := s.ward.Admit(ctx, &p, &bed)
		if err != nil {
			return result, fmt.Errorf("seed patient %s: %w", sp.patient.Name, err)
		}
		admitted = append(admitted, created)
		result.Patients++
	}

	for _, p := range admitted {
		for i := historyReadings - 1; i >= 0; i-- {
			v := s.generator.Generate(p.Status)
			a := s.classifier.Classify(ctx, v)
			r := &monitoring.VitalsReading{
				PatientID:              p.ID,
				HeartRate:              v.HeartRate,
				SpO2:                   v.SpO2,
				Temperature:            v.Temperature,
				BloodPressureSystolic:  v.BloodPressureSystolic,
				BloodPressureDiastolic: v.BloodPressureDiastolic,
				RespiratoryRate:        v.RespiratoryRate,
				RiskScore:              a.Score,
				RiskLevel:              a.Level,
				RiskSource:             a.Source,
				Timestamp:              now.Add(-time.Duration(i) * historyInterval),
			}
			if err := s.vitals.Append(ctx, r); err != nil {
				return result, fmt.Errorf("seed vitals for %s: %w", p.Name, err)
			}
			result.Readings++
		}
	}

	for i, sa := range sampleAlerts {
		p := admitted[sa.patient]
		a := &monitoring.Alert{
			PatientID:   p.ID,
			PatientName: p.Name,
			BedNumber:   p.BedNumber,
			Message:     fmt.Sprintf("%s (Bed %d): %s", p.Name, *p.BedNumber, sa.message),
			Severity:    sa.severity,
			Type:        sa.typ,
			Time:        now.Add(-time.Duration(len(sampleAlerts)-i) * time.Minute),
		}
		if err := s.alerts.Create(ctx, a); err != nil {
			return result, fmt.Errorf("seed alert: %w", err)
		}
		result.Alerts++
	}
	return result, nil
}

// Handler exposes POST /sandbox/seed. It is only registered in development.
type Handler struct {
	seeder *Seeder
}

func NewHandler(seeder *Seeder) *Handler {
	return &Handler{seeder: seeder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sandbox", auth.RequireRole(auth.RoleAdmin))
	g.POST("/seed", h.Seed)
}

func (h *Handler) Seed(c echo.Context) error {
	result, err := h.seeder.Seed(c.Request().Context())
	if err != nil {
		return ward.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, result)
}
