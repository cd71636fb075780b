package telemedicine

import (
	"time"

	"careflow/workflow"
)

// Consultation is a scheduled video session between a patient and a doctor.
// The room id is allocated at scheduling time; the session duration is
// recorded in whole minutes when the session ends.
type Consultation struct {
	ID                string
	PatientID         string
	DoctorID          string
	ScheduledTime     time.Time
	RoomID            string
	Status            workflow.Status
	ConsultationNotes *string
	CancelReason      *string
	TechnicalIssue    *string
	StartedAt         *time.Time
	EndedAt           *time.Time
	DurationMinutes   *int
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Filters narrows paged consultation listings.
type Filters struct {
	PatientID string
	DoctorID  string
	Status    workflow.Status
	Page      int
	PageSize  int
}
