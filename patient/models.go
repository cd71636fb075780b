package patient

import "time"

// AppointmentStatus is the appointment booking state. Appointments are
// administrative records, not engine-tracked workflows, so the legality
// checks live in the service.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentCompleted  AppointmentStatus = "COMPLETED"
	AppointmentCancelled  AppointmentStatus = "CANCELLED"
	AppointmentNoShow     AppointmentStatus = "NO_SHOW"
)

type AppointmentType string

const (
	TypeConsultation AppointmentType = "CONSULTATION"
	TypeFollowUp     AppointmentType = "FOLLOW_UP"
	TypeEmergency    AppointmentType = "EMERGENCY"
	TypeTelemedicine AppointmentType = "TELEMEDICINE"
	TypeVaccination  AppointmentType = "VACCINATION"
)

type Appointment struct {
	ID              string
	PatientID       string
	DoctorID        string
	AppointmentType AppointmentType
	ScheduledTime   time.Time
	DurationMinutes int
	Reason          *string
	Notes           *string
	CancelReason    *string
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "ACTIVE"
	PrescriptionCompleted PrescriptionStatus = "COMPLETED"
	PrescriptionCancelled PrescriptionStatus = "CANCELLED"
	PrescriptionExpired   PrescriptionStatus = "EXPIRED"
)

// Prescription groups the medication lines issued in one consultation. Its
// items are what intake schedules and reminders reference.
type Prescription struct {
	ID             string
	PatientID      string
	DoctorID       string
	PrescribedDate time.Time
	ValidUntil     *time.Time
	Notes          *string
	Status         PrescriptionStatus
	Items          []PrescriptionItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type PrescriptionItem struct {
	ID             string
	PrescriptionID string
	MedicationName string
	Dosage         string
	Frequency      string
	DurationDays   int
	Instructions   *string
}

// AppointmentFilters narrows paged appointment listings.
type AppointmentFilters struct {
	PatientID string
	DoctorID  string
	Status    AppointmentStatus
	Page      int
	PageSize  int
}
