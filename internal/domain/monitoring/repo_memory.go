package monitoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/icuward/internal/domain/ward"
)

// MemoryStore keeps readings and alerts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[uuid.UUID][]*VitalsReading
	alerts   map[uuid.UUID]*Alert
	seq      map[uuid.UUID]int64
	next     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings: make(map[uuid.UUID][]*VitalsReading),
		alerts:   make(map[uuid.UUID]*Alert),
		seq:      make(map[uuid.UUID]int64),
	}
}

func (s *MemoryStore) Vitals() VitalsRepository { return memoryVitals{s} }
func (s *MemoryStore) Alerts() AlertRepository  { return memoryAlerts{s} }

func cloneAlert(a *Alert) *Alert {
	c := *a
	if a.BedNumber != nil {
		n := *a.BedNumber
		c.BedNumber = &n
	}
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	return &c
}

// =========== Vitals ===========

type memoryVitals struct{ s *MemoryStore }

func (r memoryVitals) Append(_ context.Context, v *VitalsReading) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *v
	r.s.readings[v.PatientID] = append(r.s.readings[v.PatientID], &c)
	return nil
}

// sortedDesc orders a patient's readings newest first. Readings with equal
// timestamps keep their reverse arrival order.
func sortedDesc(in []*VitalsReading) []*VitalsReading {
	out := make([]*VitalsReading, len(in))
	for i, v := range in {
		c := *v
		out[len(in)-1-i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (r memoryVitals) History(_ context.Context, patientID uuid.UUID, limit int) ([]*VitalsReading, error) {
	r.s.mu.RLock()
	out := sortedDesc(r.s.readings[patientID])
	r.s.mu.RUnlock()
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryVitals) Latest(_ context.Context, patientIDs []uuid.UUID) (map[uuid.UUID]*VitalsReading, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uuid.UUID]*VitalsReading, len(patientIDs))
	for _, id := range patientIDs {
		if list := r.s.readings[id]; len(list) > 0 {
			out[id] = sortedDesc(list)[0]
		}
	}
	return out, nil
}

// =========== Alerts ===========

type memoryAlerts struct{ s *MemoryStore }

func (r memoryAlerts) Create(_ context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.alerts[a.ID]; ok {
		return fmt.Errorf("%w: alert %s already exists", ward.ErrConflict, a.ID)
	}
	r.s.alerts[a.ID] = cloneAlert(a)
	r.s.next++
	r.s.seq[a.ID] = r.s.next
	return nil
}

func (r memoryAlerts) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("%w: alert %s", ward.ErrNotFound, id)
	}
	return cloneAlert(a), nil
}

func (r memoryAlerts) List(_ context.Context, f AlertFilter, limit int) ([]*Alert, error) {
	r.s.mu.RLock()
	var out []*Alert
	for _, a := range r.s.alerts {
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		out = append(out, cloneAlert(a))
	}
	seq := r.s.seq
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.After(out[j].Time)
		}
		return seq[out[i].ID] > seq[out[j].ID]
	})
	r.s.mu.RUnlock()

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryAlerts) Acknowledge(_ context.Context, id uuid.UUID, by string, at time.Time) (*Alert, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: alert %s", ward.ErrNotFound, id)
	}
	if a.Acknowledged {
		return cloneAlert(a), false, nil
	}
	a.Acknowledged = true
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &at
	return cloneAlert(a), true, nil
}
