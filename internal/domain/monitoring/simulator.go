package monitoring

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/icuward/internal/domain/risk"
	"github.com/ehr/icuward/internal/domain/ward"
)

type span struct{ min, max float64 }

// vitalsBand is the range each vital is drawn from for one patient status.
type vitalsBand struct {
	heartRate, spo2, temperature     span
	systolic, diastolic, respiratory span
}

var simulatorBands = map[ward.Severity]vitalsBand{
	ward.SeverityCritical: {
		heartRate: span{105, 140}, spo2: span{82, 93}, temperature: span{38.2, 40.0},
		systolic: span{150, 190}, diastolic: span{90, 120}, respiratory: span{22, 35},
	},
	ward.SeverityWarning: {
		heartRate: span{90, 115}, spo2: span{90, 96}, temperature: span{37.5, 38.8},
		systolic: span{130, 155}, diastolic: span{80, 95}, respiratory: span{18, 25},
	},
	ward.SeverityStable: {
		heartRate: span{60, 95}, spo2: span{95, 100}, temperature: span{36.2, 37.4},
		systolic: span{110, 135}, diastolic: span{65, 85}, respiratory: span{12, 20},
	},
}

// Simulator feeds synthetic bedside readings for every active patient
// through the regular ingestion path.
type Simulator struct {
	svc      *Service
	patients PatientDirectory
	interval time.Duration
	logger   zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(svc *Service, patients PatientDirectory, interval time.Duration, logger zerolog.Logger) *Simulator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Simulator{
		svc:      svc,
		patients: patients,
		interval: interval,
		logger:   logger.With().Str("component", "vitals-simulator").Logger(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed makes the generated readings reproducible.
func (s *Simulator) WithSeed(seed int64) *Simulator {
	s.rng = rand.New(rand.NewSource(seed))
	return s
}

func (s *Simulator) draw(r span) float64 {
	v := r.min + s.rng.Float64()*(r.max-r.min)
	return math.Round(v*10) / 10
}

// Generate draws a reading banded by the patient's status. Unknown statuses
// use the stable band.
func (s *Simulator) Generate(status ward.Severity) risk.Vitals {
	b, ok := simulatorBands[status]
	if !ok {
		b = simulatorBands[ward.SeverityStable]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return risk.Vitals{
		HeartRate:              s.draw(b.heartRate),
		SpO2:                   s.draw(b.spo2),
		Temperature:            s.draw(b.temperature),
		BloodPressureSystolic:  s.draw(b.systolic),
		BloodPressureDiastolic: s.draw(b.diastolic),
		RespiratoryRate:        s.draw(b.respiratory),
	}
}

// InputFor wraps a patient's vitals as an ingestion request.
func InputFor(patientID uuid.UUID, v risk.Vitals) VitalsInput {
	return VitalsInput{
		PatientID:              patientID,
		HeartRate:              &v.HeartRate,
		SpO2:                   &v.SpO2,
		Temperature:            &v.Temperature,
		BloodPressureSystolic:  &v.BloodPressureSystolic,
		BloodPressureDiastolic: &v.BloodPressureDiastolic,
		RespiratoryRate:        &v.RespiratoryRate,
	}
}

// Tick ingests one reading per active patient and returns how many were
// accepted.
func (s *Simulator) Tick(ctx context.Context) (int, error) {
	patients, _, err := s.patients.ListPatients(ctx, ward.PatientFilter{Active: true}, 0, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range patients {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := s.svc.Ingest(ctx, InputFor(p.ID, s.Generate(p.Status))); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("simulated reading rejected")
			continue
		}
		n++
	}
	return n, nil
}

// Run ticks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("vitals simulator started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("vitals simulator stopped")
			return nil
		case <-ticker.C:
			n, err := s.Tick(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("vitals simulator tick failed")
				continue
			}
			s.logger.Debug().Int("readings", n).Msg("vitals simulator tick")
		}
	}
}
