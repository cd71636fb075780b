package telemedicine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"careflow/workflow"
)

// Service coordinates the video consultation lifecycle. Session timestamps
// and the derived duration are owned by the transition gateway and the
// repository; the service validates input and shapes payloads.
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
	PatientID     string
	DoctorID      string
	ScheduledTime time.Time
}

// Schedule books a session and allocates its video room.
func (s *Service) Schedule(ctx context.Context, params ScheduleParams) (Consultation, error) {
	if params.PatientID == "" {
		return Consultation{}, fmt.Errorf("telemedicine: missing patient id")
	}
	if params.DoctorID == "" {
		return Consultation{}, fmt.Errorf("telemedicine: missing doctor id")
	}
	if params.ScheduledTime.IsZero() {
		return Consultation{}, fmt.Errorf("telemedicine: scheduled time required")
	}

	cons := Consultation{
		ID:            s.idGenerator(),
		PatientID:     params.PatientID,
		DoctorID:      params.DoctorID,
		ScheduledTime: params.ScheduledTime,
		RoomID:        s.newRoomID(),
		Status:        workflow.InitialStatus(workflow.KindVideoConsultation),
	}
	return s.repo.Create(ctx, cons)
}

// Start opens the session when both parties join.
func (s *Service) Start(ctx context.Context, consultationID string) (Consultation, error) {
	return s.transition(ctx, consultationID, workflow.StatusInProgress, nil)
}

// End closes the session and records the doctor's notes. The stored duration
// is derived from the start and end instants.
func (s *Service) End(ctx context.Context, consultationID, notes string) (Consultation, error) {
	payload := map[string]any{"consultation_notes": notes}
	return s.transition(ctx, consultationID, workflow.StatusCompleted, payload)
}

// Cancel calls off a session that has not completed.
func (s *Service) Cancel(ctx context.Context, consultationID, reason string) (Consultation, error) {
	payload := map[string]any{"cancel_reason": reason}
	return s.transition(ctx, consultationID, workflow.StatusCancelled, payload)
}

// MarkNoShow records that the patient never joined.
func (s *Service) MarkNoShow(ctx context.Context, consultationID string) (Consultation, error) {
	return s.transition(ctx, consultationID, workflow.StatusNoShow, nil)
}

// ReportTechnicalIssue aborts the session with a description of the failure.
func (s *Service) ReportTechnicalIssue(ctx context.Context, consultationID, details string) (Consultation, error) {
	if details == "" {
		return Consultation{}, fmt.Errorf("telemedicine: issue details required")
	}
	payload := map[string]any{"technical_issue": details}
	return s.transition(ctx, consultationID, workflow.StatusTechIssue, payload)
}

func (s *Service) transition(ctx context.Context, consultationID string, target workflow.Status, payload map[string]any) (Consultation, error) {
	if consultationID == "" {
		return Consultation{}, fmt.Errorf("telemedicine: missing consultation id")
	}
	if _, err := s.gateway.Transition(ctx, workflow.KindVideoConsultation, consultationID, target, s.now(), payload); err != nil {
		return Consultation{}, err
	}
	return s.repo.GetByID(ctx, consultationID)
}

func (s *Service) Get(ctx context.Context, consultationID string) (Consultation, error) {
	return s.repo.GetByID(ctx, consultationID)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Consultation, int, error) {
	return s.repo.List(ctx, filters)
}

// FindOverdue lists ids of SCHEDULED sessions whose slot has passed as of
// now. Re-running with the same now and data yields the same set.
func (s *Service) FindOverdue(ctx context.Context, now time.Time) ([]string, error) {
	return s.repo.FindOverdue(ctx, now)
}

// newRoomID derives a short room handle from a fresh uuid.
func (s *Service) newRoomID() string {
	raw := strings.ReplaceAll(s.idGenerator(), "-", "")
	if len(raw) > 12 {
		raw = raw[:12]
	}
	return "room_" + raw
}
