package rcp

import (
	"time"

	"careflow/workflow"
)

// MeetingType distinguishes how a concertation meeting is held.
type MeetingType string

const (
	MeetingVirtual  MeetingType = "VIRTUAL"
	MeetingPhysical MeetingType = "PHYSICAL"
	MeetingHybrid   MeetingType = "HYBRID"
)

// Meeting is a multidisciplinary concertation session. A postponed meeting
// can be rescheduled back to SCHEDULED with a new slot; its actual start and
// end are stamped on first entry only, so the recorded session survives
// replayed transitions.
type Meeting struct {
	ID              string
	Title           string
	Description     *string
	PatientID       string
	OrganizerID     string
	MeetingType     MeetingType
	ScheduledTime   time.Time
	Location        *string
	MeetingLink     *string
	Status          workflow.Status
	DecisionSummary *string
	Recommendations *string
	NextSteps       *string
	CancelReason    *string
	PostponeReason  *string
	ActualStartTime *time.Time
	ActualEndTime   *time.Time
	DurationMinutes *int
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Participant is a clinician invited to a meeting.
type Participant struct {
	MeetingID string
	DoctorID  string
	Role      string
	Attended  bool
}

// Filters narrows paged meeting listings.
type Filters struct {
	PatientID   string
	OrganizerID string
	Status      workflow.Status
	Page        int
	PageSize    int
}
