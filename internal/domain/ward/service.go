package ward

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/icuward/internal/domain/risk"
	"github.com/ehr/icuward/internal/platform/events"
)

type Service struct {
	beds       BedRepository
	patients   PatientRepository
	coord      *Coordinator
	rec        *Recommender
	events     events.Publisher
	thresholds risk.Thresholds
	now        func() time.Time
}

func NewService(beds BedRepository, patients PatientRepository, scorer *Scorer) *Service {
	return &Service{
		beds:       beds,
		patients:   patients,
		coord:      NewCoordinator(beds, patients),
		rec:        NewRecommender(beds, patients, scorer),
		events:     events.Nop(),
		thresholds: risk.DefaultConfig().Thresholds,
		now:        time.Now,
	}
}

// SetPublisher attaches the notification channel. Events are dropped until
// one is set.
func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.events = p
	}
}

// SetThresholds overrides the score boundaries used to escalate a patient's
// status in RecordRisk.
func (s *Service) SetThresholds(t risk.Thresholds) {
	s.thresholds = t
}

func (s *Service) publish(ctx context.Context, typ, topic, resourceType, id string, data interface{}) {
	_ = s.events.Publish(ctx, events.New(typ, topic, resourceType, id, data))
}

func (s *Service) publishPatient(ctx context.Context, typ string, p *Patient) {
	id := p.ID.String()
	s.publish(ctx, typ, events.TopicPatients, "Patient", id, p)
	s.publish(ctx, typ, events.PatientTopic(id), "Patient", id, p)
}

func bedID(n int) string { return strconv.Itoa(n) }

// -- Beds --

func (s *Service) ListBeds(ctx context.Context, f BedFilter) ([]*Bed, error) {
	if f.RoomType != "" && !f.RoomType.Valid() {
		return nil, validationf("invalid room_type %q", f.RoomType)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationf("invalid status %q", f.Status)
	}
	return s.beds.List(ctx, f)
}

func (s *Service) GetBed(ctx context.Context, number int) (*Bed, error) {
	return s.beds.GetByNumber(ctx, number)
}

func validateBed(b *Bed) error {
	if b.BedNumber <= 0 {
		return validationf("bed_number must be positive")
	}
	if !b.RoomType.Valid() {
		return validationf("room_type must be one of icu, normal, isolation, step-down")
	}
	if strings.TrimSpace(b.Ward) == "" {
		return validationf("ward is required")
	}
	if b.Floor == 0 {
		b.Floor = 1
	}
	return nil
}

// CreateBed adds a bed to the inventory. New beds are never occupied;
// patients are placed through Allocate.
func (s *Service) CreateBed(ctx context.Context, b *Bed) error {
	if err := validateBed(b); err != nil {
		return err
	}
	if b.Status == "" {
		b.Status = BedAvailable
	}
	if !b.Status.Valid() {
		return validationf("invalid status %q", b.Status)
	}
	if b.Status == BedOccupied || b.PatientID != nil {
		return validationf("a new bed cannot be occupied; allocate it instead")
	}
	if b.LastSanitized.IsZero() {
		b.LastSanitized = s.now()
	}
	if err := s.beds.Create(ctx, b); err != nil {
		return err
	}
	s.publish(ctx, events.BedAdded, events.TopicBeds, "Bed", bedID(b.BedNumber), b)
	return nil
}

func (s *Service) UpdateBed(ctx context.Context, b *Bed) error {
	if err := validateBed(b); err != nil {
		return err
	}
	if err := s.beds.Update(ctx, b); err != nil {
		return err
	}
	s.publish(ctx, events.BedUpdated, events.TopicBeds, "Bed", bedID(b.BedNumber), b)
	return nil
}

func (s *Service) SetBedStatus(ctx context.Context, number int, status BedStatus) (*Bed, error) {
	bed, err := s.coord.SetBedStatus(ctx, number, status)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BedUpdated, events.TopicBeds, "Bed", bedID(number), bed)
	return bed, nil
}

func (s *Service) DeleteBed(ctx context.Context, number int) error {
	if err := s.beds.Delete(ctx, number); err != nil {
		return err
	}
	s.publish(ctx, events.BedDeleted, events.TopicBeds, "Bed", bedID(number), map[string]int{"bed_number": number})
	return nil
}

func (s *Service) BedStats(ctx context.Context) (*Summary, error) {
	beds, err := s.beds.List(ctx, BedFilter{})
	if err != nil {
		return nil, err
	}
	return Summarize(beds), nil
}

// ExportOccupancy renders the current bed stats as an xlsx workbook.
func (s *Service) ExportOccupancy(ctx context.Context) ([]byte, error) {
	summary, err := s.BedStats(ctx)
	if err != nil {
		return nil, err
	}
	return OccupancyWorkbookBytes(summary)
}

// RecommendRequest describes the patient a bed is sought for. When PatientID
// is set the stored patient's profile is the base and the remaining fields
// override it.
type RecommendRequest struct {
	PatientID       *uuid.UUID `json:"patient_id,omitempty"`
	Severity        Severity   `json:"severity,omitempty"`
	NeedsVentilator *bool      `json:"needs_ventilator,omitempty"`
	NeedsIsolation  *bool      `json:"needs_isolation,omitempty"`
}

func (s *Service) FindOptimalBed(ctx context.Context, req RecommendRequest) (*OptimalBedResult, error) {
	profile := Profile{Severity: SeverityStable}
	if req.PatientID != nil {
		p, err := s.patients.GetByID(ctx, *req.PatientID)
		if err != nil {
			return nil, err
		}
		profile = p.Profile()
	}
	if req.Severity != "" {
		if !req.Severity.Valid() {
			return nil, validationf("invalid severity %q", req.Severity)
		}
		profile.Severity = req.Severity
	}
	if req.NeedsVentilator != nil {
		profile.NeedsVentilator = *req.NeedsVentilator
	}
	if req.NeedsIsolation != nil {
		profile.NeedsIsolation = *req.NeedsIsolation
	}
	return s.rec.FindOptimalBed(ctx, profile)
}

func (s *Service) Allocate(ctx context.Context, bedNumber int, patientID uuid.UUID) (*Allocation, error) {
	alloc, err := s.coord.Allocate(ctx, bedNumber, patientID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BedAllocated, events.TopicBeds, "Bed", bedID(bedNumber), alloc)
	s.publishPatient(ctx, events.PatientUpdated, alloc.Patient)
	return alloc, nil
}

func (s *Service) Release(ctx context.Context, bedNumber int) (*Release, error) {
	rel, err := s.coord.Release(ctx, bedNumber)
	if err != nil {
		return nil, err
	}
	if rel.PreviousOccupant != nil {
		s.publish(ctx, events.BedReleased, events.TopicBeds, "Bed", bedID(bedNumber), rel)
		if p, err := s.patients.GetByID(ctx, *rel.PreviousOccupant); err == nil {
			s.publishPatient(ctx, events.PatientUpdated, p)
		}
	}
	return rel, nil
}

func (s *Service) Transfer(ctx context.Context, patientID uuid.UUID, targetBed int) (*TransferResult, error) {
	res, err := s.coord.Transfer(ctx, patientID, targetBed)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BedTransferred, events.TopicBeds, "Bed", bedID(targetBed), res)
	s.publishPatient(ctx, events.PatientUpdated, res.Patient)
	return res, nil
}

func (s *Service) StepDownCandidates(ctx context.Context) ([]StepDownCandidate, error) {
	return s.rec.StepDownCandidates(ctx)
}

func (s *Service) EscalationCandidates(ctx context.Context) ([]EscalationCandidate, error) {
	return s.rec.EscalationCandidates(ctx)
}

// -- Patients --

func (s *Service) ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, validationf("invalid status %q", f.Status)
	}
	if f.RoomType != "" && !f.RoomType.Valid() {
		return nil, 0, validationf("invalid room_type %q", f.RoomType)
	}
	return s.patients.List(ctx, f, limit, offset)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func validatePatient(p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return validationf("name is required")
	}
	if p.Age < 0 || p.Age > 150 {
		return validationf("age must be between 0 and 150")
	}
	if p.Status != "" && !p.Status.Valid() {
		return validationf("invalid status %q", p.Status)
	}
	if p.RiskScore < 0 || p.RiskScore > 1 || math.IsNaN(p.RiskScore) {
		return validationf("risk_score must be between 0 and 1")
	}
	return nil
}

// Admit registers a new patient. When bedNumber is non-nil the bed is
// allocated as part of admission and the patient record is removed again if
// the bed cannot be taken.
func (s *Service) Admit(ctx context.Context, p *Patient, bedNumber *int) (*Patient, error) {
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	if p.Status == "" {
		p.Status = SeverityStable
	}
	if p.Status == SeverityDischarged {
		return nil, validationf("cannot admit a discharged patient")
	}
	if p.AdmissionDate.IsZero() {
		p.AdmissionDate = s.now()
	}
	p.ID = uuid.New()
	p.BedNumber, p.RoomType, p.DischargeDate = nil, nil, nil

	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	if bedNumber != nil {
		alloc, err := s.coord.Allocate(ctx, *bedNumber, p.ID)
		if err != nil {
			if derr := s.patients.Delete(ctx, p.ID); derr != nil {
				return nil, errors.Join(err, derr)
			}
			return nil, err
		}
		p = alloc.Patient
		s.publish(ctx, events.BedAllocated, events.TopicBeds, "Bed", bedID(*bedNumber), alloc)
	}
	s.publishPatient(ctx, events.PatientAdmitted, p)
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	if err := s.coord.UpdatePatient(ctx, p); err != nil {
		return err
	}
	s.publishPatient(ctx, events.PatientUpdated, p)
	return nil
}

// Discharge releases the patient's bed and marks them discharged.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*Discharge, error) {
	out, err := s.coord.Discharge(ctx, id)
	if err != nil {
		return nil, err
	}
	if out.Released != nil {
		s.publish(ctx, events.BedReleased, events.TopicBeds, "Bed", bedID(out.Released.BedNumber), out.Released)
	}
	s.publishPatient(ctx, events.PatientDischarged, out.Patient)
	return out, nil
}

// RecordRisk stores the latest risk score of a patient and escalates their
// status at the classifier's thresholds.
func (s *Service) RecordRisk(ctx context.Context, id uuid.UUID, score float64) (*Patient, error) {
	p, err := s.coord.RecordRisk(ctx, id, score, s.thresholds)
	if err != nil {
		return nil, err
	}
	s.publishPatient(ctx, events.PatientUpdated, p)
	return p, nil
}

type DashboardStats struct {
	TotalBeds      int `json:"totalBeds"`
	ICUBeds        int `json:"icuBeds"`
	NormalBeds     int `json:"normalBeds"`
	Occupied       int `json:"occupied"`
	Critical       int `json:"critical"`
	Warning        int `json:"warning"`
	Stable         int `json:"stable"`
	ICUOccupied    int `json:"icuOccupied"`
	NormalOccupied int `json:"normalOccupied"`
}

// DashboardStats counts active patients by status and placement against the
// current bed inventory.
func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	beds, err := s.beds.List(ctx, BedFilter{})
	if err != nil {
		return nil, err
	}
	patients, _, err := s.patients.List(ctx, PatientFilter{Active: true}, 0, 0)
	if err != nil {
		return nil, err
	}

	out := &DashboardStats{TotalBeds: len(beds)}
	for _, b := range beds {
		switch b.RoomType {
		case RoomICU:
			out.ICUBeds++
		case RoomNormal:
			out.NormalBeds++
		}
	}
	for _, p := range patients {
		out.Occupied++
		switch p.Status {
		case SeverityCritical:
			out.Critical++
		case SeverityWarning:
			out.Warning++
		case SeverityStable:
			out.Stable++
		}
		if p.RoomType == nil {
			continue
		}
		switch *p.RoomType {
		case RoomICU:
			out.ICUOccupied++
		case RoomNormal:
			out.NormalOccupied++
		}
	}
	return out, nil
}
