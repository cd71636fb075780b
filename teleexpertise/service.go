package teleexpertise

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"careflow/workflow"
)

// Service coordinates the expertise request lifecycle. Every status change
// goes through the transition gateway; the service only validates input,
// derives the SLA deadline at creation, and shapes transition payloads.
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

type CreateParams struct {
	PatientID           string
	RequestingDoctorID  string
	Specialty           string
	ClinicalQuestion    string
	PatientHistory      *string
	CurrentTreatment    *string
	ExaminationFindings *string
	DiagnosticResults   *string
	Urgency             workflow.Urgency
}

// Create registers a new PENDING request and stamps its deadline from the
// urgency and the current instant.
func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	if params.PatientID == "" {
		return Request{}, fmt.Errorf("teleexpertise: missing patient id")
	}
	if params.RequestingDoctorID == "" {
		return Request{}, fmt.Errorf("teleexpertise: missing requesting doctor id")
	}
	if params.Specialty == "" {
		return Request{}, fmt.Errorf("teleexpertise: specialty required")
	}
	if params.ClinicalQuestion == "" {
		return Request{}, fmt.Errorf("teleexpertise: clinical question required")
	}
	if params.Urgency == "" {
		params.Urgency = workflow.UrgencyMedium
	}

	createdAt := s.now()
	deadline, err := workflow.DeadlineFor(params.Urgency, createdAt)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		ID:                  s.idGenerator(),
		PatientID:           params.PatientID,
		RequestingDoctorID:  params.RequestingDoctorID,
		Specialty:           params.Specialty,
		ClinicalQuestion:    params.ClinicalQuestion,
		PatientHistory:      params.PatientHistory,
		CurrentTreatment:    params.CurrentTreatment,
		ExaminationFindings: params.ExaminationFindings,
		DiagnosticResults:   params.DiagnosticResults,
		Urgency:             params.Urgency,
		Status:              workflow.InitialStatus(workflow.KindExpertiseRequest),
		Deadline:            deadline,
	}
	return s.repo.Create(ctx, req)
}

// Assign hands the request to an expert.
func (s *Service) Assign(ctx context.Context, requestID, expertDoctorID string) (Request, error) {
	if expertDoctorID == "" {
		return Request{}, fmt.Errorf("teleexpertise: missing expert doctor id")
	}
	payload := map[string]any{"expert_doctor_id": expertDoctorID}
	return s.transition(ctx, requestID, workflow.StatusAssigned, payload)
}

// StartReview marks the assigned expert as actively reviewing.
func (s *Service) StartReview(ctx context.Context, requestID string) (Request, error) {
	return s.transition(ctx, requestID, workflow.StatusInReview, nil)
}

// Complete records the expert's response and recommendations.
func (s *Service) Complete(ctx context.Context, requestID, response, recommendations string) (Request, error) {
	if response == "" {
		return Request{}, fmt.Errorf("teleexpertise: expert response required")
	}
	payload := map[string]any{
		"expert_response":        response,
		"expert_recommendations": recommendations,
	}
	return s.transition(ctx, requestID, workflow.StatusCompleted, payload)
}

// Cancel withdraws the request.
func (s *Service) Cancel(ctx context.Context, requestID, reason string) (Request, error) {
	payload := map[string]any{"cancel_reason": reason}
	return s.transition(ctx, requestID, workflow.StatusCancelled, payload)
}

// MarkExpired moves a request past its deadline to EXPIRED. Detection is the
// scanner's job; this mutation is invoked explicitly by an operator or job.
func (s *Service) MarkExpired(ctx context.Context, requestID string) (Request, error) {
	return s.transition(ctx, requestID, workflow.StatusExpired, nil)
}

func (s *Service) transition(ctx context.Context, requestID string, target workflow.Status, payload map[string]any) (Request, error) {
	if requestID == "" {
		return Request{}, fmt.Errorf("teleexpertise: missing request id")
	}
	if _, err := s.gateway.Transition(ctx, workflow.KindExpertiseRequest, requestID, target, s.now(), payload); err != nil {
		return Request{}, err
	}
	return s.repo.GetByID(ctx, requestID)
}

func (s *Service) Get(ctx context.Context, requestID string) (Request, error) {
	return s.repo.GetByID(ctx, requestID)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Request, int, error) {
	return s.repo.List(ctx, filters)
}

// FindOverdue lists ids of PENDING requests whose deadline has passed as of
// now. Re-running with the same now and data yields the same set.
func (s *Service) FindOverdue(ctx context.Context, now time.Time) ([]string, error) {
	return s.repo.FindOverdue(ctx, now)
}

// CompletedCount reports how many requests a doctor has had answered.
func (s *Service) CompletedCount(ctx context.Context, doctorID string) (int64, error) {
	if doctorID == "" {
		return 0, fmt.Errorf("teleexpertise: missing doctor id")
	}
	return s.repo.CountCompletedByRequestingDoctor(ctx, doctorID)
}
