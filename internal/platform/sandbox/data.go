package sandbox

import (
	"github.com/ehr/icuward/internal/domain/monitoring"
	"github.com/ehr/icuward/internal/domain/ward"
)

type feat = ward.BedFeatures

func sampleBeds() []*ward.Bed {
	b := func(n int, rt ward.RoomType, w string, floor int, f feat) *ward.Bed {
		return &ward.Bed{BedNumber: n, RoomType: rt, Ward: w, Floor: floor, Status: ward.BedAvailable, Features: f}
	}
	icuFull := feat{HasVentilator: true, HasMonitor: true, HasOxygenSupply: true}
	monitored := feat{HasMonitor: true, HasOxygenSupply: true}

	beds := []*ward.Bed{
		b(101, ward.RoomICU, "ICU-A", 1, withStation(icuFull)),
		b(102, ward.RoomICU, "ICU-A", 1, withStation(icuFull)),
		b(103, ward.RoomICU, "ICU-A", 1, icuFull),
		b(104, ward.RoomICU, "ICU-B", 1, withStation(icuFull)),
		b(105, ward.RoomStepDown, "ICU-B", 1, monitored),
		b(106, ward.RoomICU, "ICU-B", 1, icuFull),
		b(107, ward.RoomICU, "ICU-A", 1, withStation(monitored)),
		b(108, ward.RoomICU, "ICU-A", 1, icuFull),
		b(109, ward.RoomICU, "ICU-B", 1, icuFull),
		b(110, ward.RoomICU, "ICU-B", 1, withStation(monitored)),

		b(201, ward.RoomNormal, "General-A", 2, monitored),
		b(202, ward.RoomNormal, "General-A", 2, monitored),
		b(203, ward.RoomNormal, "General-A", 2, withStation(monitored)),
		b(204, ward.RoomNormal, "General-B", 2, feat{HasOxygenSupply: true}),
		b(205, ward.RoomNormal, "General-B", 2, monitored),
		b(206, ward.RoomNormal, "General-B", 2, feat{HasMonitor: true, NearNursingStation: true}),

		b(301, ward.RoomIsolation, "Isolation", 3, feat{HasMonitor: true, HasOxygenSupply: true, IsIsolation: true, NearNursingStation: true}),
		b(302, ward.RoomIsolation, "Isolation", 3, feat{HasMonitor: true, HasOxygenSupply: true, IsIsolation: true}),
		b(303, ward.RoomIsolation, "Isolation", 3, feat{HasVentilator: true, HasMonitor: true, HasOxygenSupply: true, IsIsolation: true, NearNursingStation: true}),

		b(401, ward.RoomStepDown, "Step-Down", 1, monitored),
		b(402, ward.RoomStepDown, "Step-Down", 1, withStation(monitored)),
		b(403, ward.RoomStepDown, "Step-Down", 1, monitored),
	}
	beds[7].Status = ward.BedMaintenance
	return beds
}

func withStation(f feat) feat {
	f.NearNursingStation = true
	return f
}

type samplePatient struct {
	patient ward.Patient
	bed     int
}

var samplePatients = []samplePatient{
	{ward.Patient{Name: "John Doe", Age: 65, Gender: "Male", Status: ward.SeverityCritical, Diagnosis: "Acute Respiratory Distress Syndrome",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse Amy Chen", RiskScore: 0.85, NeedsVentilator: true}, 101},
	{ward.Patient{Name: "Jane Smith", Age: 42, Gender: "Female", Status: ward.SeverityStable, Diagnosis: "Post-Cardiac Surgery Recovery",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse Amy Chen", RiskScore: 0.2}, 102},
	{ward.Patient{Name: "Bob Johnson", Age: 78, Gender: "Male", Status: ward.SeverityWarning, Diagnosis: "Sepsis - Under Treatment",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse David Kim", RiskScore: 0.55}, 103},
	{ward.Patient{Name: "Alice Brown", Age: 55, Gender: "Female", Status: ward.SeverityStable, Diagnosis: "Pneumonia Recovery",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse David Kim", RiskScore: 0.1}, 201},
	{ward.Patient{Name: "Charlie Wilson", Age: 70, Gender: "Male", Status: ward.SeverityCritical, Diagnosis: "Multi-Organ Failure",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse Amy Chen", RiskScore: 0.92, NeedsVentilator: true}, 104},
	{ward.Patient{Name: "Diana Martinez", Age: 38, Gender: "Female", Status: ward.SeverityStable, Diagnosis: "Appendectomy Recovery",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse Priya Sharma", RiskScore: 0.05}, 202},
	{ward.Patient{Name: "Edward Lee", Age: 82, Gender: "Male", Status: ward.SeverityWarning, Diagnosis: "MRSA Infection",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse Priya Sharma", RiskScore: 0.6, NeedsIsolation: true}, 301},
	{ward.Patient{Name: "Fiona Garcia", Age: 48, Gender: "Female", Status: ward.SeverityStable, Diagnosis: "Stroke Recovery",
		AssignedDoctor: "Dr. Sarah Wilson", AssignedNurse: "Nurse David Kim", RiskScore: 0.25}, 105},
}

// sampleAlerts refer to samplePatients by index.
var sampleAlerts = []struct {
	patient  int
	message  string
	severity monitoring.AlertSeverity
	typ      monitoring.AlertType
}{
	{0, "Critical HR 128 bpm, SpO2 87%", monitoring.AlertCritical, monitoring.AlertVitals},
	{4, "Risk score 0.92 - multi-organ failure", monitoring.AlertCritical, monitoring.AlertRisk},
	{2, "Temperature rising to 38.6°C", monitoring.AlertMedium, monitoring.AlertVitals},
	{6, "Isolation protocol - daily review", monitoring.AlertLow, monitoring.AlertSystem},
}
