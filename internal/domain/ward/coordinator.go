package ward

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/icuward/internal/domain/risk"
)

// Coordinator is the only writer of bed occupancy and patient placement.
// Operations on the same bed or patient are serialized in-process by keyed
// locks; the repository's conditional Transition protects the same
// invariants across processes.
type Coordinator struct {
	beds     BedRepository
	patients PatientRepository
	locks    *keyedLocks
	now      func() time.Time
}

func NewCoordinator(beds BedRepository, patients PatientRepository) *Coordinator {
	return &Coordinator{beds: beds, patients: patients, locks: newKeyedLocks(), now: time.Now}
}

type Allocation struct {
	Bed     *Bed     `json:"bed"`
	Patient *Patient `json:"patient"`
}

type TransferResult struct {
	From    *Bed     `json:"from,omitempty"`
	To      *Bed     `json:"to"`
	Patient *Patient `json:"patient"`
}

// Release reports the freed bed. PreviousOccupant is nil when the bed was
// already available.
type Release struct {
	Bed              *Bed       `json:"bed"`
	PreviousOccupant *uuid.UUID `json:"previous_occupant,omitempty"`
}

type Discharge struct {
	Patient  *Patient `json:"patient"`
	Released *Bed     `json:"released_bed,omitempty"`
}

const releaseAttempts = 3

func (c *Coordinator) Allocate(ctx context.Context, bedNumber int, patientID uuid.UUID) (*Allocation, error) {
	if bedNumber <= 0 {
		return nil, validationf("bed_number is required")
	}
	if patientID == uuid.Nil {
		return nil, validationf("patient_id is required")
	}
	defer c.locks.lockPatient(patientID)()
	defer c.locks.lockBeds(bedNumber)()

	patient, err := c.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Status == SeverityDischarged {
		return nil, validationf("patient %s is discharged", patientID)
	}
	if patient.BedNumber != nil {
		if *patient.BedNumber == bedNumber {
			return nil, &BedUnavailableError{BedNumber: bedNumber, Status: BedOccupied}
		}
		return nil, validationf("patient already occupies bed %d; use transfer", *patient.BedNumber)
	}
	return c.place(ctx, patient, bedNumber)
}

// place claims bedNumber for a patient without a bed and records the
// placement, reverting the claim if the placement cannot be written.
func (c *Coordinator) place(ctx context.Context, patient *Patient, bedNumber int) (*Allocation, error) {
	bed, err := c.claim(ctx, bedNumber, patient.ID)
	if err != nil {
		return nil, err
	}
	if err := c.patients.SetPlacement(ctx, patient.ID, &Placement{BedNumber: bed.BedNumber, RoomType: bed.RoomType}); err != nil {
		if _, uerr := c.unclaim(ctx, bedNumber, patient.ID, bed.LastSanitized); uerr != nil {
			return nil, fmt.Errorf("record placement: %v; revert bed %d: %w", err, bedNumber, uerr)
		}
		return nil, fmt.Errorf("record placement: %w", err)
	}
	n, rt := bed.BedNumber, bed.RoomType
	patient.BedNumber = &n
	patient.RoomType = &rt
	return &Allocation{Bed: bed, Patient: patient}, nil
}

func (c *Coordinator) claim(ctx context.Context, number int, patientID uuid.UUID) (*Bed, error) {
	id := patientID
	bed, err := c.beds.Transition(ctx, number, Transition{From: BedAvailable, To: BedOccupied, Occupant: &id})
	if errors.Is(err, ErrStatusMismatch) {
		status := BedOccupied
		if bed != nil {
			status = bed.Status
		}
		return nil, &BedUnavailableError{BedNumber: number, Status: status}
	}
	return bed, err
}

// unclaim undoes claim, restoring the bed's previous sanitation time.
func (c *Coordinator) unclaim(ctx context.Context, number int, patientID uuid.UUID, sanitized time.Time) (*Bed, error) {
	id := patientID
	return c.beds.Transition(ctx, number, Transition{
		From: BedOccupied, To: BedAvailable, ExpectOccupant: &id, Sanitized: &sanitized,
	})
}

// Release frees a bed. Releasing an available bed is a no-op and reports no
// previous occupant; beds under maintenance or reserved must be changed
// through SetBedStatus.
func (c *Coordinator) Release(ctx context.Context, bedNumber int) (*Release, error) {
	if bedNumber <= 0 {
		return nil, validationf("bed_number is required")
	}
	for attempt := 0; attempt < releaseAttempts; attempt++ {
		peek, err := c.beds.GetByNumber(ctx, bedNumber)
		if err != nil {
			return nil, err
		}
		unlockPatient := func() {}
		if peek.PatientID != nil {
			unlockPatient = c.locks.lockPatient(*peek.PatientID)
		}
		unlockBed := c.locks.lockBeds(bedNumber)
		rel, retry, err := c.release(ctx, bedNumber, peek.PatientID)
		unlockBed()
		unlockPatient()
		if !retry {
			return rel, err
		}
	}
	return nil, fmt.Errorf("%w: bed %d changed hands during release", ErrConflict, bedNumber)
}

// release expects the caller to hold the bed lock and the lock of the
// occupant it observed. retry is set when the occupant changed meanwhile.
func (c *Coordinator) release(ctx context.Context, number int, observed *uuid.UUID) (rel *Release, retry bool, err error) {
	cur, err := c.beds.GetByNumber(ctx, number)
	if err != nil {
		return nil, false, err
	}
	if !sameOccupant(cur.PatientID, observed) {
		return nil, true, nil
	}
	switch cur.Status {
	case BedAvailable:
		return &Release{Bed: cur}, false, nil
	case BedMaintenance, BedReserved:
		return nil, false, validationf("bed %d is %s; change it through the status endpoint", number, cur.Status)
	}
	if cur.PatientID == nil {
		return nil, false, fmt.Errorf("%w: bed %d is occupied without an occupant", ErrConflict, number)
	}

	occupant := *cur.PatientID
	now := c.now()
	bed, err := c.beds.Transition(ctx, number, Transition{
		From: BedOccupied, To: BedAvailable, ExpectOccupant: &occupant, Sanitized: &now,
	})
	if errors.Is(err, ErrStatusMismatch) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := c.clearPlacement(ctx, occupant, number); err != nil {
		prev := cur.LastSanitized
		if _, rerr := c.beds.Transition(ctx, number, Transition{
			From: BedAvailable, To: BedOccupied, Occupant: &occupant, Sanitized: &prev,
		}); rerr != nil {
			return nil, false, fmt.Errorf("clear placement: %v; restore bed %d: %w", err, number, rerr)
		}
		return nil, false, fmt.Errorf("clear placement: %w", err)
	}
	return &Release{Bed: bed, PreviousOccupant: &occupant}, false, nil
}

func (c *Coordinator) clearPlacement(ctx context.Context, patientID uuid.UUID, number int) error {
	p, err := c.patients.GetByID(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.BedNumber == nil || *p.BedNumber != number {
		return nil
	}
	return c.patients.SetPlacement(ctx, patientID, nil)
}

func sameOccupant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Transfer moves a patient to targetBed. The target is claimed before the
// source is released, so the patient is never without a bed; any step that
// fails is undone in reverse order before returning.
func (c *Coordinator) Transfer(ctx context.Context, patientID uuid.UUID, targetBed int) (*TransferResult, error) {
	if patientID == uuid.Nil {
		return nil, validationf("patient_id is required")
	}
	if targetBed <= 0 {
		return nil, validationf("target_bed_number is required")
	}
	defer c.locks.lockPatient(patientID)()

	patient, err := c.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Status == SeverityDischarged {
		return nil, validationf("patient %s is discharged", patientID)
	}

	if patient.BedNumber == nil {
		defer c.locks.lockBeds(targetBed)()
		alloc, err := c.place(ctx, patient, targetBed)
		if err != nil {
			return nil, err
		}
		return &TransferResult{To: alloc.Bed, Patient: alloc.Patient}, nil
	}

	source := *patient.BedNumber
	if source == targetBed {
		return nil, validationf("patient is already in bed %d", targetBed)
	}
	defer c.locks.lockBeds(source, targetBed)()

	src, err := c.beds.GetByNumber(ctx, source)
	if err != nil {
		return nil, err
	}
	if src.Status != BedOccupied || !sameOccupant(src.PatientID, &patientID) {
		return nil, fmt.Errorf("%w: bed %d is not held by patient %s", ErrConflict, source, patientID)
	}

	to, err := c.claim(ctx, targetBed, patientID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	pid := patientID
	from, err := c.beds.Transition(ctx, source, Transition{
		From: BedOccupied, To: BedAvailable, ExpectOccupant: &pid, Sanitized: &now,
	})
	if err != nil {
		cause := fmt.Errorf("release source bed %d: %w", source, err)
		if _, uerr := c.unclaim(ctx, targetBed, patientID, to.LastSanitized); uerr != nil {
			return nil, &PartialTransferError{
				PatientID:  patientID,
				SourceBed:  &source,
				TargetBed:  targetBed,
				Unresolved: []string{fmt.Sprintf("target bed %d still claimed: %v", targetBed, uerr)},
				Cause:      cause,
			}
		}
		return nil, cause
	}

	if err := c.patients.SetPlacement(ctx, patientID, &Placement{BedNumber: targetBed, RoomType: to.RoomType}); err != nil {
		cause := fmt.Errorf("record placement: %w", err)
		var unresolved []string
		prev := src.LastSanitized
		if _, rerr := c.beds.Transition(ctx, source, Transition{
			From: BedAvailable, To: BedOccupied, Occupant: &pid, Sanitized: &prev,
		}); rerr != nil {
			unresolved = append(unresolved, fmt.Sprintf("source bed %d not re-occupied: %v", source, rerr))
		}
		if _, uerr := c.unclaim(ctx, targetBed, patientID, to.LastSanitized); uerr != nil {
			unresolved = append(unresolved, fmt.Sprintf("target bed %d still claimed: %v", targetBed, uerr))
		}
		if len(unresolved) > 0 {
			return nil, &PartialTransferError{
				PatientID: patientID, SourceBed: &source, TargetBed: targetBed,
				Unresolved: unresolved, Cause: cause,
			}
		}
		return nil, cause
	}

	n, rt := targetBed, to.RoomType
	patient.BedNumber = &n
	patient.RoomType = &rt
	return &TransferResult{From: from, To: to, Patient: patient}, nil
}

// SetBedStatus moves a bed that is not occupied between available,
// maintenance and reserved.
func (c *Coordinator) SetBedStatus(ctx context.Context, bedNumber int, status BedStatus) (*Bed, error) {
	if !status.Valid() || status == BedOccupied {
		return nil, validationf("status must be available, maintenance or reserved")
	}
	defer c.locks.lockBeds(bedNumber)()

	cur, err := c.beds.GetByNumber(ctx, bedNumber)
	if err != nil {
		return nil, err
	}
	if cur.Status == BedOccupied {
		return nil, fmt.Errorf("%w: bed %d is occupied; release it first", ErrConflict, bedNumber)
	}
	if cur.Status == status {
		return cur, nil
	}
	bed, err := c.beds.Transition(ctx, bedNumber, Transition{From: cur.Status, To: status})
	if errors.Is(err, ErrStatusMismatch) {
		return nil, fmt.Errorf("%w: bed %d changed state concurrently", ErrConflict, bedNumber)
	}
	return bed, err
}

// Discharge releases the patient's bed, if any, and marks the patient
// discharged. Discharging twice returns the stored patient unchanged.
func (c *Coordinator) Discharge(ctx context.Context, patientID uuid.UUID) (*Discharge, error) {
	if patientID == uuid.Nil {
		return nil, validationf("patient_id is required")
	}
	defer c.locks.lockPatient(patientID)()

	patient, err := c.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Status == SeverityDischarged {
		return &Discharge{Patient: patient}, nil
	}

	out := &Discharge{}
	if patient.BedNumber != nil {
		number := *patient.BedNumber
		unlock := c.locks.lockBeds(number)
		rel, stale, err := c.release(ctx, number, &patientID)
		unlock()
		switch {
		case err != nil:
			return nil, err
		case stale:
			// The bed no longer names this patient; only the placement is left.
			if err := c.patients.SetPlacement(ctx, patientID, nil); err != nil {
				return nil, err
			}
		default:
			out.Released = rel.Bed
		}
	}

	at := c.now()
	if err := c.patients.Discharge(ctx, patientID, at); err != nil {
		return nil, err
	}
	patient, err = c.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out.Patient = patient
	return out, nil
}

// RecordRisk stores a new risk score and escalates the patient's severity:
// above Critical the patient becomes critical, above Medium a non-critical
// patient becomes warning. Lower scores leave the status alone, as do
// discharged patients' statuses.
func (c *Coordinator) RecordRisk(ctx context.Context, patientID uuid.UUID, score float64, th risk.Thresholds) (*Patient, error) {
	if score < 0 || score > 1 || math.IsNaN(score) {
		return nil, validationf("risk_score must be between 0 and 1")
	}
	defer c.locks.lockPatient(patientID)()

	p, err := c.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	status := p.Status
	if status != SeverityDischarged {
		switch {
		case score > th.Critical:
			status = SeverityCritical
		case score > th.Medium && status != SeverityCritical:
			status = SeverityWarning
		}
	}
	if err := c.patients.UpdateRisk(ctx, patientID, score, status); err != nil {
		return nil, err
	}
	p.RiskScore = score
	p.Status = status
	return p, nil
}

// UpdatePatient writes the patient's descriptive and clinical attributes.
// Placement, risk score and discharge are never taken from p, and a
// discharged patient stays discharged.
func (c *Coordinator) UpdatePatient(ctx context.Context, p *Patient) error {
	defer c.locks.lockPatient(p.ID)()

	cur, err := c.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	switch {
	case cur.Status == SeverityDischarged:
		p.Status = SeverityDischarged
	case p.Status == "":
		p.Status = cur.Status
	case p.Status == SeverityDischarged:
		return validationf("discharge a patient through the discharge endpoint")
	}
	return c.patients.Update(ctx, p)
}
