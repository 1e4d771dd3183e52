package ward

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transition describes a conditional change of a bed's occupancy. It is
// applied only if the bed's current status equals From and, when
// ExpectOccupant is set, the bed is held by that patient.
type Transition struct {
	From           BedStatus
	To             BedStatus
	ExpectOccupant *uuid.UUID
	// Occupant is written as-is, so nil clears it.
	Occupant *uuid.UUID
	// Sanitized replaces LastSanitized when non-nil.
	Sanitized *time.Time
}

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByNumber(ctx context.Context, number int) (*Bed, error)
	// Update writes descriptive attributes only; status and occupant are
	// changed through Transition.
	Update(ctx context.Context, b *Bed) error
	// Delete removes a bed that is not occupied.
	Delete(ctx context.Context, number int) error
	List(ctx context.Context, filter BedFilter) ([]*Bed, error)
	// Transition is a compare-and-swap on the bed's status. It returns
	// ErrNotFound for an unknown bed and ErrStatusMismatch when the
	// precondition does not hold.
	Transition(ctx context.Context, number int, t Transition) (*Bed, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// Update writes demographic and clinical attributes only.
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter PatientFilter, limit, offset int) ([]*Patient, int, error)
	// SetPlacement records the patient's current bed; nil clears it.
	SetPlacement(ctx context.Context, id uuid.UUID, placement *Placement) error
	UpdateRisk(ctx context.Context, id uuid.UUID, score float64, status Severity) error
	Discharge(ctx context.Context, id uuid.UUID, at time.Time) error
}
