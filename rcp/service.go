package rcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"careflow/workflow"
)

// Service coordinates the concertation meeting lifecycle, the one workflow
// with a re-entry edge: a postponed meeting returns to SCHEDULED with a new
// slot once rescheduled.
type Service struct {
	repo        Repository
	gateway     *workflow.Gateway
	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		gateway:     workflow.NewGateway(repo, log),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type ScheduleParams struct {
	Title         string
	Description   *string
	PatientID     string
	OrganizerID   string
	MeetingType   MeetingType
	ScheduledTime time.Time
	Location      *string
	MeetingLink   *string
	Participants  []Participant
}

// Schedule books a meeting together with its invitation list. The organizer
// is always invited.
func (s *Service) Schedule(ctx context.Context, params ScheduleParams) (Meeting, error) {
	if params.Title == "" {
		return Meeting{}, fmt.Errorf("rcp: title required")
	}
	if params.PatientID == "" {
		return Meeting{}, fmt.Errorf("rcp: missing patient id")
	}
	if params.OrganizerID == "" {
		return Meeting{}, fmt.Errorf("rcp: missing organizer id")
	}
	if params.ScheduledTime.IsZero() {
		return Meeting{}, fmt.Errorf("rcp: scheduled time required")
	}
	if params.MeetingType == "" {
		params.MeetingType = MeetingVirtual
	}

	meeting := Meeting{
		ID:            s.idGenerator(),
		Title:         params.Title,
		Description:   params.Description,
		PatientID:     params.PatientID,
		OrganizerID:   params.OrganizerID,
		MeetingType:   params.MeetingType,
		ScheduledTime: params.ScheduledTime,
		Location:      params.Location,
		MeetingLink:   params.MeetingLink,
		Status:        workflow.InitialStatus(workflow.KindRCPMeeting),
	}

	participants := []Participant{{DoctorID: params.OrganizerID, Role: "ORGANIZER"}}
	for _, p := range params.Participants {
		if p.DoctorID == params.OrganizerID {
			continue
		}
		participants = append(participants, p)
	}
	return s.repo.Create(ctx, meeting, participants)
}

// Start opens the session.
func (s *Service) Start(ctx context.Context, meetingID string) (Meeting, error) {
	return s.transition(ctx, meetingID, workflow.StatusInProgress, nil)
}

// Complete closes the session with the board's conclusions. The stored
// duration is derived from the actual start and end instants.
func (s *Service) Complete(ctx context.Context, meetingID, decisionSummary, recommendations, nextSteps string) (Meeting, error) {
	if decisionSummary == "" {
		return Meeting{}, fmt.Errorf("rcp: decision summary required")
	}
	payload := map[string]any{
		"decision_summary": decisionSummary,
		"recommendations":  recommendations,
		"next_steps":       nextSteps,
	}
	return s.transition(ctx, meetingID, workflow.StatusCompleted, payload)
}

// Cancel calls off a meeting.
func (s *Service) Cancel(ctx context.Context, meetingID, reason string) (Meeting, error) {
	payload := map[string]any{"cancel_reason": reason}
	return s.transition(ctx, meetingID, workflow.StatusCancelled, payload)
}

// Postpone parks a scheduled meeting until it is rescheduled or cancelled.
func (s *Service) Postpone(ctx context.Context, meetingID, reason string) (Meeting, error) {
	payload := map[string]any{"postpone_reason": reason}
	return s.transition(ctx, meetingID, workflow.StatusPostponed, payload)
}

// Reschedule moves a postponed meeting back to SCHEDULED at a new slot.
func (s *Service) Reschedule(ctx context.Context, meetingID string, newTime time.Time) (Meeting, error) {
	if newTime.IsZero() {
		return Meeting{}, fmt.Errorf("rcp: new scheduled time required")
	}
	payload := map[string]any{"scheduled_time": newTime}
	return s.transition(ctx, meetingID, workflow.StatusScheduled, payload)
}

func (s *Service) transition(ctx context.Context, meetingID string, target workflow.Status, payload map[string]any) (Meeting, error) {
	if meetingID == "" {
		return Meeting{}, fmt.Errorf("rcp: missing meeting id")
	}
	if _, err := s.gateway.Transition(ctx, workflow.KindRCPMeeting, meetingID, target, s.now(), payload); err != nil {
		return Meeting{}, err
	}
	return s.repo.GetByID(ctx, meetingID)
}

func (s *Service) Get(ctx context.Context, meetingID string) (Meeting, error) {
	return s.repo.GetByID(ctx, meetingID)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Meeting, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Participants(ctx context.Context, meetingID string) ([]Participant, error) {
	return s.repo.Participants(ctx, meetingID)
}

// Invite adds a clinician to the meeting roster.
func (s *Service) Invite(ctx context.Context, meetingID, doctorID, role string) error {
	if meetingID == "" || doctorID == "" {
		return fmt.Errorf("rcp: meeting id and doctor id required")
	}
	return s.repo.AddParticipant(ctx, Participant{MeetingID: meetingID, DoctorID: doctorID, Role: role})
}

// RecordAttendance marks whether an invited clinician was present.
func (s *Service) RecordAttendance(ctx context.Context, meetingID, doctorID string, attended bool) error {
	return s.repo.RecordAttendance(ctx, meetingID, doctorID, attended)
}

// FindOverdue lists ids of SCHEDULED meetings whose slot has passed as of
// now. Re-running with the same now and data yields the same set.
func (s *Service) FindOverdue(ctx context.Context, now time.Time) ([]string, error) {
	return s.repo.FindOverdue(ctx, now)
}
