package ward

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func bed(number int, rt RoomType, ward string, f BedFeatures) *Bed {
	return &Bed{
		BedNumber:     number,
		RoomType:      rt,
		Ward:          ward,
		Floor:         1,
		Status:        BedAvailable,
		Features:      f,
		LastSanitized: testNow.Add(-5 * time.Hour),
	}
}

type fixture struct {
	store *MemoryStore
	coord *Coordinator
}

func newFixture(t *testing.T, beds ...*Bed) *fixture {
	t.Helper()
	store := NewMemoryStore()
	store.now = fixedClock
	for _, b := range beds {
		if err := store.Beds().Create(context.Background(), b); err != nil {
			t.Fatalf("create bed %d: %v", b.BedNumber, err)
		}
	}
	coord := NewCoordinator(store.Beds(), store.Patients())
	coord.now = fixedClock
	return &fixture{store: store, coord: coord}
}

func (f *fixture) addPatient(t *testing.T, name string, status Severity) *Patient {
	t.Helper()
	p := &Patient{
		ID:            uuid.New(),
		Name:          name,
		Age:           60,
		Status:        status,
		AdmissionDate: testNow,
	}
	if err := f.store.Patients().Create(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func (f *fixture) bedAt(t *testing.T, number int) *Bed {
	t.Helper()
	b, err := f.store.Beds().GetByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("get bed %d: %v", number, err)
	}
	return b
}

func (f *fixture) patient(t *testing.T, id uuid.UUID) *Patient {
	t.Helper()
	p, err := f.store.Patients().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get patient %s: %v", id, err)
	}
	return p
}

func (f *fixture) allocate(t *testing.T, bedNumber int, p *Patient) {
	t.Helper()
	if _, err := f.coord.Allocate(context.Background(), bedNumber, p.ID); err != nil {
		t.Fatalf("allocate bed %d: %v", bedNumber, err)
	}
}

// assertConsistent checks that occupied beds and patient placements agree in
// both directions.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	beds, err := f.store.Beds().List(ctx, BedFilter{})
	if err != nil {
		t.Fatal(err)
	}
	patients, _, err := f.store.Patients().List(ctx, PatientFilter{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	holders := make(map[uuid.UUID]int)
	for _, b := range beds {
		switch {
		case b.Status == BedOccupied && b.PatientID == nil:
			t.Errorf("bed %d is occupied without an occupant", b.BedNumber)
		case b.Status != BedOccupied && b.PatientID != nil:
			t.Errorf("bed %d is %s but names patient %s", b.BedNumber, b.Status, b.PatientID)
		case b.PatientID != nil:
			if prev, dup := holders[*b.PatientID]; dup {
				t.Errorf("patient %s holds beds %d and %d", b.PatientID, prev, b.BedNumber)
			}
			holders[*b.PatientID] = b.BedNumber
		}
	}
	for _, p := range patients {
		held, hasBed := holders[p.ID]
		switch {
		case p.BedNumber == nil && hasBed:
			t.Errorf("patient %s has no placement but bed %d names them", p.Name, held)
		case p.BedNumber != nil && !hasBed:
			t.Errorf("patient %s is placed in bed %d which does not name them", p.Name, *p.BedNumber)
		case p.BedNumber != nil && *p.BedNumber != held:
			t.Errorf("patient %s is placed in bed %d but holds bed %d", p.Name, *p.BedNumber, held)
		}
		if p.Status == SeverityDischarged && hasBed {
			t.Errorf("discharged patient %s still holds bed %d", p.Name, held)
		}
	}
}

// faultyBeds fails Transition calls selected by fail.
type faultyBeds struct {
	BedRepository
	fail func(number int, t Transition) error
}

func (f *faultyBeds) Transition(ctx context.Context, number int, t Transition) (*Bed, error) {
	if f.fail != nil {
		if err := f.fail(number, t); err != nil {
			return nil, err
		}
	}
	return f.BedRepository.Transition(ctx, number, t)
}

// faultyPatients fails SetPlacement calls that set a placement.
type faultyPatients struct {
	PatientRepository
	placementErr error
}

func (f *faultyPatients) SetPlacement(ctx context.Context, id uuid.UUID, pl *Placement) error {
	if pl != nil && f.placementErr != nil {
		return f.placementErr
	}
	return f.PatientRepository.SetPlacement(ctx, id, pl)
}
