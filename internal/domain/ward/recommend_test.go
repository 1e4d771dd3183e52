package ward

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func (f *fixture) recommender() *Recommender {
	return NewRecommender(f.store.Beds(), f.store.Patients(), testScorer())
}

func TestFindOptimalBed_PrefersEquippedICUForCriticalVentilated(t *testing.T) {
	f := newFixture(t,
		bed(301, RoomNormal, "General-A", BedFeatures{HasMonitor: true, HasOxygenSupply: true}),
		bed(101, RoomICU, "ICU-A", fullKit),
	)

	res, err := f.recommender().FindOptimalBed(context.Background(), Profile{Severity: SeverityCritical, NeedsVentilator: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Recommended == nil || res.Recommended.Bed.BedNumber != 101 {
		t.Fatalf("expected bed 101 recommended, got %+v", res.Recommended)
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0].Bed.BedNumber != 301 {
		t.Errorf("expected bed 301 as the only alternative, got %+v", res.Alternatives)
	}
	joined := strings.Join(res.Reasoning, "|")
	for _, want := range []string{"ICU bed selected for critical patient", "Equipped with ventilator as required"} {
		if !strings.Contains(joined, want) {
			t.Errorf("reasoning %v missing %q", res.Reasoning, want)
		}
	}
	if res.WardOccupancy["ICU-A"] == nil || res.WardOccupancy["General-A"] == nil {
		t.Errorf("expected ward occupancy for both wards, got %v", res.WardOccupancy)
	}
}

func TestFindOptimalBed_TiesBreakByBedNumber(t *testing.T) {
	f := newFixture(t,
		bed(7, RoomNormal, "General-B", BedFeatures{}),
		bed(3, RoomNormal, "General-A", BedFeatures{}),
		bed(5, RoomNormal, "General-A", BedFeatures{}),
	)

	res, err := f.recommender().FindOptimalBed(context.Background(), Profile{Severity: SeverityStable})
	if err != nil {
		t.Fatal(err)
	}
	var order []int
	for _, sb := range res.All {
		order = append(order, sb.Bed.BedNumber)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 5 || order[2] != 7 {
		t.Errorf("expected [3 5 7], got %v", order)
	}
	if res.Reasoning[0] != "Standard room appropriate for stable patient" {
		t.Errorf("unexpected reasoning %v", res.Reasoning)
	}
}

func TestFindOptimalBed_AlternativesCapped(t *testing.T) {
	var beds []*Bed
	for i := 1; i <= 6; i++ {
		beds = append(beds, bed(i, RoomICU, "ICU-A", BedFeatures{}))
	}
	f := newFixture(t, beds...)

	res, err := f.recommender().FindOptimalBed(context.Background(), Profile{Severity: SeverityCritical})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alternatives) != 3 || len(res.All) != 6 {
		t.Errorf("expected 3 alternatives of 6, got %d of %d", len(res.Alternatives), len(res.All))
	}
}

func TestFindOptimalBed_NoBeds(t *testing.T) {
	f := newFixture(t, bed(1, RoomICU, "ICU-A", fullKit))
	if _, err := f.coord.SetBedStatus(context.Background(), 1, BedMaintenance); err != nil {
		t.Fatal(err)
	}

	for name, r := range map[string]*Recommender{
		"all beds unavailable": f.recommender(),
		"empty inventory":      newFixture(t).recommender(),
	} {
		t.Run(name, func(t *testing.T) {
			res, err := r.FindOptimalBed(context.Background(), Profile{Severity: SeverityCritical})
			if err != nil {
				t.Fatalf("expected a result, got error %v", err)
			}
			if res.Success || res.Message != "No beds available" || res.Recommended != nil {
				t.Errorf("unexpected result %+v", res)
			}
			if res.Alternatives == nil || len(res.Alternatives) != 0 {
				t.Errorf("expected empty alternatives, got %v", res.Alternatives)
			}
		})
	}
}

func TestStepDownCandidates(t *testing.T) {
	f := newFixture(t,
		bed(101, RoomICU, "ICU-A", fullKit),
		bed(102, RoomICU, "ICU-A", fullKit),
		bed(103, RoomICU, "ICU-A", fullKit),
		bed(301, RoomNormal, "General-A", BedFeatures{HasMonitor: true}),
		bed(401, RoomStepDown, "Step-Down", BedFeatures{HasMonitor: true}),
	)
	ctx := context.Background()

	ready := f.addPatient(t, "Ready", SeverityStable)
	f.allocate(t, 101, ready)
	if err := f.store.Patients().UpdateRisk(ctx, ready.ID, 0.2, SeverityStable); err != nil {
		t.Fatal(err)
	}
	risky := f.addPatient(t, "Too Risky", SeverityStable)
	f.allocate(t, 102, risky)
	if err := f.store.Patients().UpdateRisk(ctx, risky.ID, 0.35, SeverityStable); err != nil {
		t.Fatal(err)
	}
	warning := f.addPatient(t, "Warning", SeverityWarning)
	f.allocate(t, 103, warning)

	got, err := f.recommender().StepDownCandidates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.Patient.ID != ready.ID || c.CurrentRoom != RoomICU || c.SuggestedRoom != RoomStepDown {
		t.Errorf("unexpected candidate %+v", c)
	}
	if len(c.AvailableBeds) != 2 || c.AvailableBeds[0].Bed.BedNumber != 401 || c.AvailableBeds[1].Bed.BedNumber != 301 {
		t.Errorf("expected step-down bed before normal bed, got %+v", c.AvailableBeds)
	}
	if !strings.Contains(c.Reason, "risk score 0.2") {
		t.Errorf("unexpected reason %q", c.Reason)
	}
}

func TestStepDownCandidates_NormalOnly(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(301, RoomNormal, "General-A", BedFeatures{}))
	p := f.addPatient(t, "Ready", SeverityStable)
	f.allocate(t, 101, p)

	got, err := f.recommender().StepDownCandidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SuggestedRoom != RoomNormal {
		t.Errorf("expected normal room suggestion, got %+v", got)
	}
}

func TestStepDownCandidates_NoFreeBeds(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit))
	p := f.addPatient(t, "Ready", SeverityStable)
	f.allocate(t, 101, p)

	got, err := f.recommender().StepDownCandidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty list, got %+v", got)
	}
}

func TestEscalationCandidates(t *testing.T) {
	f := newFixture(t,
		bed(101, RoomICU, "ICU-A", fullKit),
		bed(102, RoomICU, "ICU-A", fullKit),
		bed(301, RoomNormal, "General-A", BedFeatures{}),
	)
	inNormal := f.addPatient(t, "In Normal", SeverityCritical)
	f.allocate(t, 301, inNormal)
	unplaced := f.addPatient(t, "Unplaced", SeverityCritical)
	inICU := f.addPatient(t, "In ICU", SeverityCritical)
	f.allocate(t, 101, inICU)
	f.addPatient(t, "Warning", SeverityWarning)

	got, err := f.recommender().EscalationCandidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	byID := make(map[uuid.UUID]EscalationCandidate)
	for _, c := range got {
		byID[c.Patient.ID] = c
	}
	if len(byID) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	normal, ok := byID[inNormal.ID]
	if !ok || normal.CurrentRoom != RoomNormal || normal.Urgency != "high" || normal.SuggestedRoom != RoomICU {
		t.Errorf("unexpected candidate for patient in normal room: %+v", normal)
	}
	if len(normal.AvailableBeds) != 1 || normal.AvailableBeds[0].Bed.BedNumber != 102 {
		t.Errorf("expected free icu bed 102, got %+v", normal.AvailableBeds)
	}
	none, ok := byID[unplaced.ID]
	if !ok || none.CurrentRoom != "" || !strings.Contains(none.Reason, "no bed") {
		t.Errorf("unexpected candidate for unplaced patient: %+v", none)
	}
}

func TestEscalationCandidates_NoICUBed(t *testing.T) {
	f := newFixture(t, bed(101, RoomICU, "ICU-A", fullKit), bed(301, RoomNormal, "General-A", BedFeatures{}))
	f.allocate(t, 101, f.addPatient(t, "In ICU", SeverityCritical))
	f.allocate(t, 301, f.addPatient(t, "Waiting", SeverityCritical))

	got, err := f.recommender().EscalationCandidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates without a free icu bed, got %+v", got)
	}
}
