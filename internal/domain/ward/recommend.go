package ward

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

type ScoredBed struct {
	Bed   *Bed    `json:"bed"`
	Score float64 `json:"score"`
}

// OptimalBedResult is never an error: an empty inventory is reported with
// Success false and a message.
type OptimalBedResult struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message,omitempty"`
	Recommended   *ScoredBed            `json:"recommended,omitempty"`
	Alternatives  []ScoredBed           `json:"alternatives"`
	All           []ScoredBed           `json:"all"`
	WardOccupancy map[string]*WardStats `json:"ward_occupancy,omitempty"`
	Reasoning     []string              `json:"reasoning,omitempty"`
}

type StepDownCandidate struct {
	Patient       *Patient    `json:"patient"`
	CurrentRoom   RoomType    `json:"current_room"`
	SuggestedRoom RoomType    `json:"suggested_room"`
	AvailableBeds []ScoredBed `json:"available_beds"`
	Reason        string      `json:"reason"`
}

type EscalationCandidate struct {
	Patient       *Patient    `json:"patient"`
	CurrentRoom   RoomType    `json:"current_room,omitempty"`
	SuggestedRoom RoomType    `json:"suggested_room"`
	AvailableBeds []ScoredBed `json:"available_beds"`
	Reason        string      `json:"reason"`
	Urgency       string      `json:"urgency"`
}

const (
	maxAlternatives    = 3
	maxCandidateBeds   = 3
	stepDownRiskCutoff = 0.3
)

// Recommender reads a fresh snapshot of beds and patients on every call and
// never writes.
type Recommender struct {
	beds     BedRepository
	patients PatientRepository
	scorer   *Scorer
}

func NewRecommender(beds BedRepository, patients PatientRepository, scorer *Scorer) *Recommender {
	return &Recommender{beds: beds, patients: patients, scorer: scorer}
}

// rank scores beds for p, best first, ties broken by ascending bed number.
func (r *Recommender) rank(beds []*Bed, p Profile) []ScoredBed {
	out := make([]ScoredBed, 0, len(beds))
	for _, b := range beds {
		out = append(out, ScoredBed{Bed: b, Score: r.scorer.Score(b, p)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Bed.BedNumber < out[j].Bed.BedNumber
	})
	return out
}

func (r *Recommender) FindOptimalBed(ctx context.Context, p Profile) (*OptimalBedResult, error) {
	if p.Severity == "" {
		p.Severity = SeverityStable
	}
	all, err := r.beds.List(ctx, BedFilter{})
	if err != nil {
		return nil, err
	}
	var available []*Bed
	for _, b := range all {
		if b.Status == BedAvailable {
			available = append(available, b)
		}
	}
	if len(available) == 0 {
		return &OptimalBedResult{
			Success:      false,
			Message:      "No beds available",
			Alternatives: []ScoredBed{},
			All:          []ScoredBed{},
		}, nil
	}

	ranked := r.rank(available, p)
	best := ranked[0]
	end := 1 + maxAlternatives
	if end > len(ranked) {
		end = len(ranked)
	}
	return &OptimalBedResult{
		Success:       true,
		Recommended:   &best,
		Alternatives:  ranked[1:end],
		All:           ranked,
		WardOccupancy: WardOccupancy(all),
		Reasoning:     reasoning(best.Bed, p),
	}, nil
}

func reasoning(b *Bed, p Profile) []string {
	var reasons []string
	if p.Severity == SeverityCritical && b.RoomType == RoomICU {
		reasons = append(reasons, "ICU bed selected for critical patient")
	}
	if b.Features.NearNursingStation {
		reasons = append(reasons, "Near nursing station for close monitoring")
	}
	if p.NeedsVentilator && b.Features.HasVentilator {
		reasons = append(reasons, "Equipped with ventilator as required")
	}
	if p.NeedsIsolation && b.Features.IsIsolation {
		reasons = append(reasons, "Isolation room for infection control")
	}
	if b.RoomType == RoomNormal && p.Severity == SeverityStable {
		reasons = append(reasons, "Standard room appropriate for stable patient")
	}
	if len(reasons) == 0 {
		return []string{"Best available option based on scoring algorithm"}
	}
	return reasons
}

type snapshot struct {
	available map[RoomType][]*Bed
	patients  []*Patient
}

func (r *Recommender) snapshot(ctx context.Context) (*snapshot, error) {
	beds, err := r.beds.List(ctx, BedFilter{Status: BedAvailable})
	if err != nil {
		return nil, err
	}
	patients, _, err := r.patients.List(ctx, PatientFilter{Active: true}, 0, 0)
	if err != nil {
		return nil, err
	}
	s := &snapshot{available: make(map[RoomType][]*Bed), patients: patients}
	for _, b := range beds {
		s.available[b.RoomType] = append(s.available[b.RoomType], b)
	}
	return s, nil
}

func firstN(beds []ScoredBed, n int) []ScoredBed {
	if len(beds) > n {
		return beds[:n]
	}
	return beds
}

// StepDownCandidates lists stable, low-risk ICU patients that could move to
// a step-down or normal bed. Step-down beds are offered first.
func (r *Recommender) StepDownCandidates(ctx context.Context) ([]StepDownCandidate, error) {
	s, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	stepDown, normal := s.available[RoomStepDown], s.available[RoomNormal]
	if len(stepDown) == 0 && len(normal) == 0 {
		return []StepDownCandidate{}, nil
	}
	suggested := RoomNormal
	if len(stepDown) > 0 {
		suggested = RoomStepDown
	}

	out := []StepDownCandidate{}
	for _, p := range s.patients {
		if p.RoomType == nil || *p.RoomType != RoomICU {
			continue
		}
		if p.Status != SeverityStable || p.RiskScore >= stepDownRiskCutoff {
			continue
		}
		profile := p.Profile()
		beds := append(r.rank(stepDown, profile), r.rank(normal, profile)...)
		out = append(out, StepDownCandidate{
			Patient:       p,
			CurrentRoom:   RoomICU,
			SuggestedRoom: suggested,
			AvailableBeds: firstN(beds, maxCandidateBeds),
			Reason: fmt.Sprintf("Patient %s is stable with risk score %s. Consider step-down to free ICU capacity.",
				p.Name, strconv.FormatFloat(p.RiskScore, 'f', -1, 64)),
		})
	}
	return out, nil
}

// EscalationCandidates lists critical patients outside the ICU, including
// those without a bed, when an ICU bed is free.
func (r *Recommender) EscalationCandidates(ctx context.Context) ([]EscalationCandidate, error) {
	s, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	icu := s.available[RoomICU]
	out := []EscalationCandidate{}
	if len(icu) == 0 {
		return out, nil
	}
	for _, p := range s.patients {
		if p.Status != SeverityCritical {
			continue
		}
		if p.RoomType != nil && *p.RoomType == RoomICU {
			continue
		}
		var current RoomType
		where := "no bed"
		if p.RoomType != nil {
			current = *p.RoomType
			where = string(current)
		}
		out = append(out, EscalationCandidate{
			Patient:       p,
			CurrentRoom:   current,
			SuggestedRoom: RoomICU,
			AvailableBeds: firstN(r.rank(icu, p.Profile()), maxCandidateBeds),
			Reason:        fmt.Sprintf("Patient %s is critical and currently in %s. ICU bed recommended.", p.Name, where),
			Urgency:       "high",
		})
	}
	return out, nil
}
