// Package events carries domain notifications to real-time subscribers.
// Publishing is fire-and-forget: domain code never fails because a
// subscriber could not be reached.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

const (
	BedAllocated      = "bed.allocated"
	BedReleased       = "bed.released"
	BedTransferred    = "bed.transferred"
	BedAdded          = "bed.added"
	BedUpdated        = "bed.updated"
	BedDeleted        = "bed.deleted"
	PatientAdmitted   = "patient.admitted"
	PatientUpdated    = "patient.updated"
	PatientDischarged = "patient.discharged"
	AlertRaised       = "alert.raised"
	AlertAcknowledged = "alert.acknowledged"
	VitalsUpdated     = "vitals.updated"
)

const (
	TopicBeds     = "beds"
	TopicPatients = "patients"
	TopicAlerts   = "alerts"
	TopicVitals   = "vitals"
)

// PatientTopic is the per-patient topic that bedside views subscribe to.
func PatientTopic(id string) string {
	return "Patient/" + id
}

type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// New builds an event, encoding data as JSON. Data that cannot be encoded
// is dropped.
func New(typ, topic, resourceType, resourceID string, data interface{}) Event {
	e := Event{
		Type:         typ,
		Topic:        topic,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			e.Data = raw
		}
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// Nop discards every event.
func Nop() Publisher { return nopPublisher{} }

// Multi fans an event out to every publisher. Failures are logged and never
// returned.
type Multi struct {
	publishers []Publisher
	logger     zerolog.Logger
}

func NewMulti(logger zerolog.Logger, publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers, logger: logger}
}

// Add registers another sink. It is not safe to call concurrently with
// Publish.
func (m *Multi) Add(p Publisher) {
	m.publishers = append(m.publishers, p)
}

func (m *Multi) Publish(ctx context.Context, event Event) error {
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			m.logger.Warn().Err(err).
				Str("event", event.Type).
				Str("topic", event.Topic).
				Msg("event publish failed")
		}
	}
	return nil
}
