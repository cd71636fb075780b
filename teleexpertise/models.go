package teleexpertise

import (
	"time"

	"careflow/workflow"
)

// Request is a specialist expertise request raised by a treating doctor.
// The response deadline is derived from urgency when the request is created
// and never recomputed.
type Request struct {
	ID                    string
	PatientID             string
	RequestingDoctorID    string
	ExpertDoctorID        *string
	Specialty             string
	ClinicalQuestion      string
	PatientHistory        *string
	CurrentTreatment      *string
	ExaminationFindings   *string
	DiagnosticResults     *string
	Urgency               workflow.Urgency
	Status                workflow.Status
	ExpertResponse        *string
	ExpertRecommendations *string
	CancelReason          *string
	AssignedAt            *time.Time
	RespondedAt           *time.Time
	Deadline              time.Time
	Version               int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Filters narrows paged request listings.
type Filters struct {
	RequestingDoctorID string
	ExpertDoctorID     string
	Specialty          string
	Status             workflow.Status
	Page               int
	PageSize           int
}
