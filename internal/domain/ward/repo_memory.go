package ward

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps beds and patients in process memory. Every read returns
// a copy, so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	beds     map[int]*Bed
	patients map[uuid.UUID]*Patient
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		beds:     make(map[int]*Bed),
		patients: make(map[uuid.UUID]*Patient),
		now:      time.Now,
	}
}

func (s *MemoryStore) Beds() BedRepository         { return memoryBeds{s} }
func (s *MemoryStore) Patients() PatientRepository { return memoryPatients{s} }

func cloneBed(b *Bed) *Bed {
	c := *b
	if b.PatientID != nil {
		id := *b.PatientID
		c.PatientID = &id
	}
	return &c
}

func clonePatient(p *Patient) *Patient {
	c := *p
	if p.RoomType != nil {
		rt := *p.RoomType
		c.RoomType = &rt
	}
	if p.BedNumber != nil {
		n := *p.BedNumber
		c.BedNumber = &n
	}
	if p.DischargeDate != nil {
		d := *p.DischargeDate
		c.DischargeDate = &d
	}
	if p.Allergies != nil {
		c.Allergies = append([]string(nil), p.Allergies...)
	}
	return &c
}

// =========== Beds ===========

type memoryBeds struct{ s *MemoryStore }

func (r memoryBeds) Create(_ context.Context, b *Bed) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.beds[b.BedNumber]; ok {
		return fmt.Errorf("%w: bed %d already exists", ErrConflict, b.BedNumber)
	}
	now := r.s.now()
	b.CreatedAt = now
	b.UpdatedAt = now
	r.s.beds[b.BedNumber] = cloneBed(b)
	return nil
}

func (r memoryBeds) GetByNumber(_ context.Context, number int) (*Bed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.beds[number]
	if !ok {
		return nil, fmt.Errorf("%w: bed %d", ErrNotFound, number)
	}
	return cloneBed(b), nil
}

func (r memoryBeds) Update(_ context.Context, b *Bed) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.beds[b.BedNumber]
	if !ok {
		return fmt.Errorf("%w: bed %d", ErrNotFound, b.BedNumber)
	}
	cur.RoomType = b.RoomType
	cur.Ward = b.Ward
	cur.Floor = b.Floor
	cur.Features = b.Features
	cur.Notes = b.Notes
	cur.UpdatedAt = r.s.now()
	*b = *cloneBed(cur)
	return nil
}

func (r memoryBeds) Delete(_ context.Context, number int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.beds[number]
	if !ok {
		return fmt.Errorf("%w: bed %d", ErrNotFound, number)
	}
	if b.Status == BedOccupied {
		return fmt.Errorf("%w: bed %d is occupied", ErrConflict, number)
	}
	delete(r.s.beds, number)
	return nil
}

func (r memoryBeds) List(_ context.Context, f BedFilter) ([]*Bed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*Bed
	for _, b := range r.s.beds {
		if f.RoomType != "" && b.RoomType != f.RoomType {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Ward != "" && b.Ward != f.Ward {
			continue
		}
		out = append(out, cloneBed(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BedNumber < out[j].BedNumber })
	return out, nil
}

func (r memoryBeds) Transition(_ context.Context, number int, t Transition) (*Bed, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.beds[number]
	if !ok {
		return nil, fmt.Errorf("%w: bed %d", ErrNotFound, number)
	}
	if b.Status != t.From {
		return cloneBed(b), ErrStatusMismatch
	}
	if t.ExpectOccupant != nil && (b.PatientID == nil || *b.PatientID != *t.ExpectOccupant) {
		return cloneBed(b), ErrStatusMismatch
	}
	b.Status = t.To
	if t.Occupant != nil {
		id := *t.Occupant
		b.PatientID = &id
	} else {
		b.PatientID = nil
	}
	if t.Sanitized != nil {
		b.LastSanitized = *t.Sanitized
	}
	b.UpdatedAt = r.s.now()
	return cloneBed(b), nil
}

// =========== Patients ===========

type memoryPatients struct{ s *MemoryStore }

func (r memoryPatients) Create(_ context.Context, p *Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := r.s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.patients[p.ID] = clonePatient(p)
	return nil
}

func (r memoryPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	return clonePatient(p), nil
}

func (r memoryPatients) Update(_ context.Context, p *Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.patients[p.ID]
	if !ok {
		return fmt.Errorf("%w: patient %s", ErrNotFound, p.ID)
	}
	cur.Name = p.Name
	cur.Age = p.Age
	cur.Gender = p.Gender
	cur.Status = p.Status
	cur.Diagnosis = p.Diagnosis
	cur.AssignedDoctor = p.AssignedDoctor
	cur.AssignedNurse = p.AssignedNurse
	cur.Allergies = append([]string(nil), p.Allergies...)
	cur.Notes = p.Notes
	cur.NeedsVentilator = p.NeedsVentilator
	cur.NeedsIsolation = p.NeedsIsolation
	cur.UpdatedAt = r.s.now()
	*p = *clonePatient(cur)
	return nil
}

func (r memoryPatients) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.patients[id]; !ok {
		return fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	delete(r.s.patients, id)
	return nil
}

// List returns patients ordered by admission date, newest first. A limit of
// zero or less returns every match.
func (r memoryPatients) List(_ context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	r.s.mu.RLock()
	var all []*Patient
	search := strings.ToLower(f.Search)
	for _, p := range r.s.patients {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Active && p.Status == SeverityDischarged {
			continue
		}
		if f.RoomType != "" && (p.RoomType == nil || *p.RoomType != f.RoomType) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		all = append(all, clonePatient(p))
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].AdmissionDate.Equal(all[j].AdmissionDate) {
			return all[i].AdmissionDate.After(all[j].AdmissionDate)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	total := len(all)
	if offset > total {
		offset = total
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r memoryPatients) SetPlacement(_ context.Context, id uuid.UUID, pl *Placement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	if pl == nil {
		p.BedNumber = nil
		p.RoomType = nil
	} else {
		n, rt := pl.BedNumber, pl.RoomType
		p.BedNumber = &n
		p.RoomType = &rt
	}
	p.UpdatedAt = r.s.now()
	return nil
}

func (r memoryPatients) UpdateRisk(_ context.Context, id uuid.UUID, score float64, status Severity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	p.RiskScore = score
	p.Status = status
	p.UpdatedAt = r.s.now()
	return nil
}

func (r memoryPatients) Discharge(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	p.Status = SeverityDischarged
	p.DischargeDate = &at
	p.UpdatedAt = r.s.now()
	return nil
}
