package ward

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrBedUnavailable  = errors.New("bed unavailable")
	ErrConflict        = errors.New("conflict")
	ErrPartialTransfer = errors.New("partial transfer failure")
)

// ErrStatusMismatch is returned by BedRepository.Transition when the bed is
// not in the expected state. The Coordinator translates it.
var ErrStatusMismatch = errors.New("bed status mismatch")

// BedUnavailableError reports that a bed could not be claimed because it was
// not available at the time of the request.
type BedUnavailableError struct {
	BedNumber int
	Status    BedStatus
}

func (e *BedUnavailableError) Error() string {
	return fmt.Sprintf("bed %d is not available (status %s)", e.BedNumber, e.Status)
}

func (e *BedUnavailableError) Is(target error) bool {
	return target == ErrBedUnavailable
}

// PartialTransferError is returned when a transfer failed midway and one of
// the compensating steps also failed. Unresolved lists the steps whose
// effects are still in place.
type PartialTransferError struct {
	PatientID  uuid.UUID
	SourceBed  *int
	TargetBed  int
	Unresolved []string
	Cause      error
}

func (e *PartialTransferError) Error() string {
	src := "none"
	if e.SourceBed != nil {
		src = fmt.Sprintf("%d", *e.SourceBed)
	}
	return fmt.Sprintf("transfer of patient %s from bed %s to bed %d failed (%v); unresolved: %s",
		e.PatientID, src, e.TargetBed, e.Cause, strings.Join(e.Unresolved, ", "))
}

func (e *PartialTransferError) Is(target error) bool {
	return target == ErrPartialTransfer
}

func (e *PartialTransferError) Unwrap() error {
	return e.Cause
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
