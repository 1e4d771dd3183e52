package ward

import (
	"time"

	"github.com/google/uuid"
)

type RoomType string

const (
	RoomICU       RoomType = "icu"
	RoomNormal    RoomType = "normal"
	RoomIsolation RoomType = "isolation"
	RoomStepDown  RoomType = "step-down"
)

// RoomTypes lists every room type in display order.
var RoomTypes = []RoomType{RoomICU, RoomStepDown, RoomIsolation, RoomNormal}

func (r RoomType) Valid() bool {
	switch r {
	case RoomICU, RoomNormal, RoomIsolation, RoomStepDown:
		return true
	}
	return false
}

type BedStatus string

const (
	BedAvailable   BedStatus = "available"
	BedOccupied    BedStatus = "occupied"
	BedMaintenance BedStatus = "maintenance"
	BedReserved    BedStatus = "reserved"
)

func (s BedStatus) Valid() bool {
	switch s {
	case BedAvailable, BedOccupied, BedMaintenance, BedReserved:
		return true
	}
	return false
}

// Severity is the clinical status of a patient.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityWarning    Severity = "warning"
	SeverityStable     Severity = "stable"
	SeverityDischarged Severity = "discharged"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityStable, SeverityDischarged:
		return true
	}
	return false
}

type BedFeatures struct {
	HasVentilator      bool `json:"has_ventilator"`
	HasMonitor         bool `json:"has_monitor"`
	HasOxygenSupply    bool `json:"has_oxygen_supply"`
	IsIsolation        bool `json:"is_isolation"`
	NearNursingStation bool `json:"near_nursing_station"`
}

// Bed maps to the bed table. PatientID is set exactly when Status is
// occupied.
type Bed struct {
	BedNumber     int         `db:"bed_number" json:"bed_number"`
	RoomType      RoomType    `db:"room_type" json:"room_type"`
	Ward          string      `db:"ward" json:"ward"`
	Floor         int         `db:"floor" json:"floor"`
	Status        BedStatus   `db:"status" json:"status"`
	PatientID     *uuid.UUID  `db:"patient_id" json:"patient_id,omitempty"`
	Features      BedFeatures `json:"features"`
	LastSanitized time.Time   `db:"last_sanitized" json:"last_sanitized"`
	Notes         string      `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patient table. BedNumber and RoomType are the current
// placement and are only written by the Coordinator.
type Patient struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Age             int        `db:"age" json:"age"`
	Gender          string     `db:"gender" json:"gender,omitempty"`
	Status          Severity   `db:"status" json:"status"`
	RoomType        *RoomType  `db:"room_type" json:"room_type,omitempty"`
	BedNumber       *int       `db:"bed_number" json:"bed_number,omitempty"`
	RiskScore       float64    `db:"risk_score" json:"risk_score"`
	Diagnosis       string     `db:"diagnosis" json:"diagnosis,omitempty"`
	AssignedDoctor  string     `db:"assigned_doctor" json:"assigned_doctor,omitempty"`
	AssignedNurse   string     `db:"assigned_nurse" json:"assigned_nurse,omitempty"`
	Allergies       []string   `db:"allergies" json:"allergies,omitempty"`
	Notes           string     `db:"notes" json:"notes,omitempty"`
	NeedsVentilator bool       `db:"needs_ventilator" json:"needs_ventilator"`
	NeedsIsolation  bool       `db:"needs_isolation" json:"needs_isolation"`
	AdmissionDate   time.Time  `db:"admission_date" json:"admission_date"`
	DischargeDate   *time.Time `db:"discharge_date" json:"discharge_date,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Profile returns the scoring profile implied by the patient's stored care
// flags.
func (p *Patient) Profile() Profile {
	return Profile{
		Severity:        p.Status,
		NeedsVentilator: p.NeedsVentilator,
		NeedsIsolation:  p.NeedsIsolation,
	}
}

// Placement is where a patient currently lies.
type Placement struct {
	BedNumber int
	RoomType  RoomType
}

// Profile is the input to bed scoring.
type Profile struct {
	Severity        Severity `json:"severity"`
	NeedsVentilator bool     `json:"needs_ventilator"`
	NeedsIsolation  bool     `json:"needs_isolation"`
}

type BedFilter struct {
	RoomType RoomType
	Status   BedStatus
	Ward     string
}

type PatientFilter struct {
	Status   Severity
	RoomType RoomType
	Search   string
	// Active excludes discharged patients.
	Active bool
}
