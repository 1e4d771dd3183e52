package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type VitalsRepository interface {
	Append(ctx context.Context, v *VitalsReading) error
	// History returns at most limit readings for a patient, most recent
	// first.
	History(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsReading, error)
	// Latest returns the most recent reading of each listed patient that has
	// one.
	Latest(ctx context.Context, patientIDs []uuid.UUID) (map[uuid.UUID]*VitalsReading, error)
}

type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// List returns matching alerts, newest first.
	List(ctx context.Context, filter AlertFilter, limit int) ([]*Alert, error)
	// Acknowledge marks the alert acknowledged. An alert that is already
	// acknowledged is returned unchanged with changed set to false.
	Acknowledge(ctx context.Context, id uuid.UUID, by string, at time.Time) (alert *Alert, changed bool, err error)
}
