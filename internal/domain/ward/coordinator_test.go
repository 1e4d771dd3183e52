package ward

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/icuward/internal/domain/risk"
)

func TestAllocate(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	p := f.addPatient(t, "Rahul Sharma", SeverityCritical)

	alloc, err := f.coord.Allocate(context.Background(), 101, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Bed.Status != BedOccupied || alloc.Bed.PatientID == nil || *alloc.Bed.PatientID != p.ID {
		t.Errorf("unexpected bed after allocate: %+v", alloc.Bed)
	}
	if alloc.Patient.BedNumber == nil || *alloc.Patient.BedNumber != 101 {
		t.Errorf("expected patient placed in bed 101, got %v", alloc.Patient.BedNumber)
	}
	if got := f.patient(t, p.ID); got.RoomType == nil || *got.RoomType != RoomICU {
		t.Errorf("expected stored room type icu, got %v", got.RoomType)
	}
	f.assertConsistent(t)
}

func TestAllocate_Rejections(t *testing.T) {
	f := newFixture(t,
		bed(101, RoomICU, "ICU-A", fullKit),
		bed(102, RoomICU, "ICU-A", fullKit),
		bed(103, RoomICU, "ICU-A", fullKit),
	)
	ctx := context.Background()
	placed := f.addPatient(t, "Placed", SeverityCritical)
	f.allocate(t, 101, placed)
	other := f.addPatient(t, "Other", SeverityWarning)
	gone := f.addPatient(t, "Gone", SeverityStable)
	if _, err := f.coord.Discharge(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.SetBedStatus(ctx, 103, BedMaintenance); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		bed     int
		patient uuid.UUID
		want    error
	}{
		{"occupied bed", 101, other.ID, ErrBedUnavailable},
		{"bed under maintenance", 103, other.ID, ErrBedUnavailable},
		{"patient already in this bed", 101, placed.ID, ErrBedUnavailable},
		{"patient already in another bed", 102, placed.ID, ErrValidation},
		{"discharged patient", 102, gone.ID, ErrValidation},
		{"unknown patient", 102, uuid.New(), ErrNotFound},
		{"unknown bed", 999, other.ID, ErrNotFound},
		{"missing bed number", 0, other.ID, ErrValidation},
		{"missing patient", 102, uuid.Nil, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Allocate(ctx, tt.bed, tt.patient)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	var unavailable *BedUnavailableError
	_, err := f.coord.Allocate(ctx, 103, other.ID)
	if !errors.As(err, &unavailable) || unavailable.Status != BedMaintenance {
		t.Errorf("expected BedUnavailableError with status maintenance, got %v", err)
	}
	f.assertConsistent(t)
}

func TestAllocate_ConcurrentSingleWinner(t *testing.T) {
	const n = 50
	f := newFixture(t, bed(201, RoomICU, "ICU-B", fullKit))
	patients := make([]*Patient, n)
	for i := range patients {
		patients[i] = f.addPatient(t, fmt.Sprintf("Patient %d", i), SeverityCritical)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []uuid.UUID
		others    []error
	)
	start := make(chan struct{})
	for _, p := range patients {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.coord.Allocate(context.Background(), 201, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes = append(successes, id)
			} else {
				others = append(others, err)
			}
		}(p.ID)
	}
	close(start)
	wg.Wait()

	if len(successes) != 1 {
		t.Fatalf("expected exactly 1 successful allocation, got %d", len(successes))
	}
	for _, err := range others {
		if !errors.Is(err, ErrBedUnavailable) {
			t.Errorf("expected BedUnavailable for losers, got %v", err)
		}
	}
	if b := f.bedAt(t, 201); b.PatientID == nil || *b.PatientID != successes[0] {
		t.Errorf("bed names %v, winner was %s", b.PatientID, successes[0])
	}
	f.assertConsistent(t)
}

func TestCoordinator_RandomOperationsKeepBijection(t *testing.T) {
	var beds []*Bed
	for i := 1; i <= 10; i++ {
		rt := RoomICU
		if i > 5 {
			rt = RoomNormal
		}
		beds = append(beds, bed(i, rt, "W", BedFeatures{}))
	}
	f := newFixture(t, beds...)
	var patients []uuid.UUID
	for i := 0; i < 8; i++ {
		patients = append(patients, f.addPatient(t, fmt.Sprintf("P%d", i), SeverityWarning).ID)
	}

	allowed := func(err error) bool {
		return err == nil ||
			errors.Is(err, ErrBedUnavailable) ||
			errors.Is(err, ErrValidation) ||
			errors.Is(err, ErrConflict)
	}

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			ctx := context.Background()
			for i := 0; i < 200; i++ {
				p := patients[rng.Intn(len(patients))]
				b := 1 + rng.Intn(len(beds))
				var err error
				switch rng.Intn(3) {
				case 0:
					_, err = f.coord.Allocate(ctx, b, p)
				case 1:
					_, err = f.coord.Release(ctx, b)
				default:
					_, err = f.coord.Transfer(ctx, p, b)
				}
				if !allowed(err) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(int64(w + 1))
	}
	wg.Wait()
	f.assertConsistent(t)
}

func TestRelease(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	p := f.addPatient(t, "Rahul Sharma", SeverityCritical)
	f.allocate(t, 101, p)
	before := f.bedAt(t, 101).LastSanitized

	releasedAt := testNow.Add(time.Hour)
	f.coord.now = func() time.Time { return releasedAt }

	rel, err := f.coord.Release(context.Background(), 101)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rel.PreviousOccupant == nil || *rel.PreviousOccupant != p.ID {
		t.Errorf("expected previous occupant %s, got %v", p.ID, rel.PreviousOccupant)
	}
	if rel.Bed.Status != BedAvailable || rel.Bed.PatientID != nil {
		t.Errorf("unexpected bed after release: %+v", rel.Bed)
	}
	if !rel.Bed.LastSanitized.Equal(releasedAt) || rel.Bed.LastSanitized.Equal(before) {
		t.Errorf("expected sanitation refreshed to %v, got %v", releasedAt, rel.Bed.LastSanitized)
	}
	if got := f.patient(t, p.ID); got.BedNumber != nil || got.RoomType != nil {
		t.Errorf("expected placement cleared, got bed %v room %v", got.BedNumber, got.RoomType)
	}
	f.assertConsistent(t)
}

func TestRelease_AvailableIsNoop(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	before := f.bedAt(t, 101)
	f.coord.now = func() time.Time { return testNow.Add(time.Hour) }

	for i := 0; i < 2; i++ {
		rel, err := f.coord.Release(context.Background(), 101)
		if err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
		if rel.PreviousOccupant != nil {
			t.Error("expected no previous occupant")
		}
		if !rel.Bed.LastSanitized.Equal(before.LastSanitized) {
			t.Errorf("sanitation should not change on a no-op release")
		}
	}
}

func TestRelease_Rejections(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(102, RoomICU, "ICU-A", fullKit))
	ctx := context.Background()
	if _, err := f.coord.SetBedStatus(ctx, 101, BedMaintenance); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.SetBedStatus(ctx, 102, BedReserved); err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{101, 102} {
		if _, err := f.coord.Release(ctx, n); !errors.Is(err, ErrValidation) {
			t.Errorf("bed %d: expected validation error, got %v", n, err)
		}
	}
	if _, err := f.coord.Release(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := f.coord.Release(ctx, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for bed 0, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(401, RoomStepDown, "Step-Down", BedFeatures{}))
	p := f.addPatient(t, "Ananya Iyer", SeverityStable)
	f.allocate(t, 101, p)

	res, err := f.coord.Transfer(context.Background(), p.ID, 401)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.From == nil || res.From.BedNumber != 101 || res.From.Status != BedAvailable {
		t.Errorf("unexpected source bed: %+v", res.From)
	}
	if !res.From.LastSanitized.Equal(testNow) {
		t.Errorf("expected source sanitation refreshed, got %v", res.From.LastSanitized)
	}
	if res.To.BedNumber != 401 || res.To.Status != BedOccupied {
		t.Errorf("unexpected target bed: %+v", res.To)
	}
	got := f.patient(t, p.ID)
	if got.BedNumber == nil || *got.BedNumber != 401 || *got.RoomType != RoomStepDown {
		t.Errorf("expected patient in step-down bed 401, got %v/%v", got.BedNumber, got.RoomType)
	}
	f.assertConsistent(t)
}

func TestTransfer_UnplacedPatientIsAllocated(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	p := f.addPatient(t, "Walk In", SeverityCritical)

	res, err := f.coord.Transfer(context.Background(), p.ID, 101)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.From != nil {
		t.Errorf("expected no source bed, got %+v", res.From)
	}
	f.assertConsistent(t)
}

func TestTransfer_SameBed(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	p := f.addPatient(t, "Stay Put", SeverityCritical)
	f.allocate(t, 101, p)

	if _, err := f.coord.Transfer(context.Background(), p.ID, 101); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTransfer_TargetTakenLeavesPatientInPlace(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(401, RoomStepDown, "Step-Down", BedFeatures{}))
	p := f.addPatient(t, "Ananya Iyer", SeverityStable)
	f.allocate(t, 101, p)

	// Another patient takes the recommended bed before the transfer runs.
	rival := f.addPatient(t, "Rival", SeverityWarning)
	f.allocate(t, 401, rival)

	_, err := f.coord.Transfer(context.Background(), p.ID, 401)
	if !errors.Is(err, ErrBedUnavailable) {
		t.Fatalf("expected BedUnavailable, got %v", err)
	}
	if got := f.patient(t, p.ID); got.BedNumber == nil || *got.BedNumber != 101 {
		t.Errorf("expected patient to stay in bed 101, got %v", got.BedNumber)
	}
	if b := f.bedAt(t, 101); b.Status != BedOccupied || *b.PatientID != p.ID {
		t.Errorf("expected source bed still held, got %+v", b)
	}
	f.assertConsistent(t)
}

func TestTransfer_SourceReleaseFailureIsCompensated(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(401, RoomStepDown, "Step-Down", BedFeatures{}))
	p := f.addPatient(t, "Ananya Iyer", SeverityStable)
	f.allocate(t, 101, p)
	targetBefore := f.bedAt(t, 401)

	beds := &faultyBeds{BedRepository: f.store.Beds(), fail: func(n int, tr Transition) error {
		if n == 101 && tr.To == BedAvailable {
			return errors.New("disk full")
		}
		return nil
	}}
	coord := NewCoordinator(beds, f.store.Patients())

	_, err := coord.Transfer(context.Background(), p.ID, 401)
	if err == nil || errors.Is(err, ErrPartialTransfer) {
		t.Fatalf("expected a plain error, got %v", err)
	}
	target := f.bedAt(t, 401)
	if target.Status != BedAvailable || !target.LastSanitized.Equal(targetBefore.LastSanitized) {
		t.Errorf("expected target restored, got %+v", target)
	}
	if got := f.patient(t, p.ID); got.BedNumber == nil || *got.BedNumber != 101 {
		t.Errorf("expected patient still in bed 101, got %v", got.BedNumber)
	}
	f.assertConsistent(t)
}

func TestTransfer_PlacementFailureIsCompensated(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(401, RoomStepDown, "Step-Down", BedFeatures{}))
	p := f.addPatient(t, "Ananya Iyer", SeverityStable)
	f.allocate(t, 101, p)
	sourceBefore := f.bedAt(t, 101)

	patients := &faultyPatients{PatientRepository: f.store.Patients(), placementErr: errors.New("connection reset")}
	coord := NewCoordinator(f.store.Beds(), patients)
	coord.now = func() time.Time { return testNow.Add(time.Hour) }

	_, err := coord.Transfer(context.Background(), p.ID, 401)
	if err == nil || errors.Is(err, ErrPartialTransfer) {
		t.Fatalf("expected a plain error, got %v", err)
	}
	source := f.bedAt(t, 101)
	if source.Status != BedOccupied || *source.PatientID != p.ID {
		t.Errorf("expected source re-occupied, got %+v", source)
	}
	if !source.LastSanitized.Equal(sourceBefore.LastSanitized) {
		t.Errorf("expected source sanitation restored to %v, got %v", sourceBefore.LastSanitized, source.LastSanitized)
	}
	if target := f.bedAt(t, 401); target.Status != BedAvailable {
		t.Errorf("expected target released, got %+v", target)
	}
	f.assertConsistent(t)
}

func TestTransfer_FailedCompensationIsReported(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(401, RoomStepDown, "Step-Down", BedFeatures{}))
	p := f.addPatient(t, "Ananya Iyer", SeverityStable)
	f.allocate(t, 101, p)

	beds := &faultyBeds{BedRepository: f.store.Beds(), fail: func(n int, tr Transition) error {
		if n == 401 && tr.To == BedAvailable {
			return errors.New("replica lag")
		}
		return nil
	}}
	patients := &faultyPatients{PatientRepository: f.store.Patients(), placementErr: errors.New("connection reset")}
	coord := NewCoordinator(beds, patients)

	_, err := coord.Transfer(context.Background(), p.ID, 401)
	if !errors.Is(err, ErrPartialTransfer) {
		t.Fatalf("expected partial transfer error, got %v", err)
	}
	var partial *PartialTransferError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *PartialTransferError, got %T", err)
	}
	if partial.PatientID != p.ID || partial.TargetBed != 401 || partial.SourceBed == nil || *partial.SourceBed != 101 {
		t.Errorf("unexpected partial transfer details: %+v", partial)
	}
	if len(partial.Unresolved) != 1 {
		t.Errorf("expected 1 unresolved step, got %v", partial.Unresolved)
	}
}

func TestSetBedStatus(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(102, RoomICU, "ICU-A", fullKit))
	ctx := context.Background()
	p := f.addPatient(t, "Occupant", SeverityCritical)
	f.allocate(t, 102, p)

	b, err := f.coord.SetBedStatus(ctx, 101, BedMaintenance)
	if err != nil || b.Status != BedMaintenance {
		t.Fatalf("expected maintenance, got %v, %v", b, err)
	}
	if b, err = f.coord.SetBedStatus(ctx, 101, BedReserved); err != nil || b.Status != BedReserved {
		t.Fatalf("expected reserved, got %v, %v", b, err)
	}
	if b, err = f.coord.SetBedStatus(ctx, 101, BedAvailable); err != nil || b.Status != BedAvailable {
		t.Fatalf("expected available, got %v, %v", b, err)
	}

	if _, err := f.coord.SetBedStatus(ctx, 101, BedOccupied); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for target occupied, got %v", err)
	}
	if _, err := f.coord.SetBedStatus(ctx, 101, BedStatus("broken")); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for unknown status, got %v", err)
	}
	if _, err := f.coord.SetBedStatus(ctx, 102, BedMaintenance); !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict for occupied bed, got %v", err)
	}
	f.assertConsistent(t)
}

func TestDischarge(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	ctx := context.Background()
	p := f.addPatient(t, "Going Home", SeverityStable)
	f.allocate(t, 101, p)

	out, err := f.coord.Discharge(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Released == nil || out.Released.BedNumber != 101 || out.Released.Status != BedAvailable {
		t.Errorf("expected bed 101 released, got %+v", out.Released)
	}
	if out.Patient.Status != SeverityDischarged || out.Patient.DischargeDate == nil || out.Patient.BedNumber != nil {
		t.Errorf("unexpected patient after discharge: %+v", out.Patient)
	}

	again, err := f.coord.Discharge(ctx, p.ID)
	if err != nil {
		t.Fatalf("second discharge: %v", err)
	}
	if again.Released != nil || !again.Patient.DischargeDate.Equal(*out.Patient.DischargeDate) {
		t.Errorf("second discharge should change nothing, got %+v", again)
	}
	if _, err := f.coord.Discharge(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	f.assertConsistent(t)
}

func TestRecordRisk(t *testing.T) {
	th := risk.DefaultConfig().Thresholds
	tests := []struct {
		name  string
		start Severity
		score float64
		want  Severity
	}{
		{"stable to warning", SeverityStable, 0.5, SeverityWarning},
		{"stable to critical", SeverityStable, 0.85, SeverityCritical},
		{"warning to critical", SeverityWarning, 0.71, SeverityCritical},
		{"critical stays critical on medium score", SeverityCritical, 0.5, SeverityCritical},
		{"critical stays critical on low score", SeverityCritical, 0.1, SeverityCritical},
		{"boundary 0.7 is warning", SeverityStable, 0.7, SeverityWarning},
		{"boundary 0.4 is unchanged", SeverityStable, 0.4, SeverityStable},
		{"discharged unchanged", SeverityDischarged, 0.95, SeverityDischarged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.addPatient(t, "Monitored", tt.start)
			got, err := f.coord.RecordRisk(context.Background(), p.ID, tt.score, th)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			stored := f.patient(t, p.ID)
			if stored.Status != tt.want || stored.RiskScore != tt.score {
				t.Errorf("stored %s/%v, want %s/%v", stored.Status, stored.RiskScore, tt.want, tt.score)
			}
		})
	}
}

func TestRecordRisk_RejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	p := f.addPatient(t, "Monitored", SeverityStable)
	for _, score := range []float64{-0.1, 1.01} {
		if _, err := f.coord.RecordRisk(context.Background(), p.ID, score, risk.DefaultConfig().Thresholds); !errors.Is(err, ErrValidation) {
			t.Errorf("score %v: expected validation error, got %v", score, err)
		}
	}
}

func TestUpdatePatient_KeepsPlacementAndDischarge(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	ctx := context.Background()
	p := f.addPatient(t, "Before", SeverityCritical)
	f.allocate(t, 101, p)

	edit := &Patient{ID: p.ID, Name: "After", Age: 61, Status: SeverityWarning}
	if err := f.coord.UpdatePatient(ctx, edit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := f.patient(t, p.ID)
	if got.Name != "After" || got.Status != SeverityWarning {
		t.Errorf("expected attributes updated, got %+v", got)
	}
	if got.BedNumber == nil || *got.BedNumber != 101 {
		t.Errorf("update must not touch placement, got %v", got.BedNumber)
	}

	if err := f.coord.UpdatePatient(ctx, &Patient{ID: p.ID, Name: "After", Status: SeverityDischarged}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error when discharging through update, got %v", err)
	}

	if _, err := f.coord.Discharge(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	late := &Patient{ID: p.ID, Name: "After", Status: SeverityCritical}
	if err := f.coord.UpdatePatient(ctx, late); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if late.Status != SeverityDischarged {
		t.Errorf("discharged patient must stay discharged, got %s", late.Status)
	}
}
