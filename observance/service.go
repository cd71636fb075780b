package observance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"careflow/workflow"
)

// Service tracks medication observance: scheduled intakes, their outcomes,
// the derived adherence rate, and the reminder lifecycle.
type Service struct {
	intakes         IntakeRepository
	reminders       ReminderRepository
	intakeGateway   *workflow.Gateway
	reminderGateway *workflow.Gateway
	idGenerator     func() string
	now             func() time.Time
}

func NewService(intakes IntakeRepository, reminders ReminderRepository, log zerolog.Logger) *Service {
	return &Service{
		intakes:         intakes,
		reminders:       reminders,
		intakeGateway:   workflow.NewGateway(intakes, log),
		reminderGateway: workflow.NewGateway(reminders, log),
		idGenerator:     func() string { return uuid.NewString() },
		now:             time.Now,
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

type ScheduleIntakeParams struct {
	PatientID          string
	PrescriptionItemID string
	ScheduledTime      time.Time
}

// ScheduleIntake registers a dose the patient is expected to take.
func (s *Service) ScheduleIntake(ctx context.Context, params ScheduleIntakeParams) (Intake, error) {
	if params.PatientID == "" {
		return Intake{}, fmt.Errorf("observance: missing patient id")
	}
	if params.PrescriptionItemID == "" {
		return Intake{}, fmt.Errorf("observance: missing prescription item id")
	}
	if params.ScheduledTime.IsZero() {
		return Intake{}, fmt.Errorf("observance: scheduled time required")
	}

	intake := Intake{
		ID:                 s.idGenerator(),
		PatientID:          params.PatientID,
		PrescriptionItemID: params.PrescriptionItemID,
		ScheduledTime:      params.ScheduledTime,
		Status:             workflow.InitialStatus(workflow.KindMedicationIntake),
	}
	return s.intakes.Create(ctx, intake)
}

// MarkTaken records that the dose was taken, stamping the actual time.
func (s *Service) MarkTaken(ctx context.Context, intakeID, notes, sideEffects string) (Intake, error) {
	payload := map[string]any{}
	if notes != "" {
		payload["notes"] = notes
	}
	if sideEffects != "" {
		payload["side_effects"] = sideEffects
	}
	return s.transitionIntake(ctx, intakeID, workflow.StatusTaken, payload)
}

// MarkMissed records a dose that was not taken. Invoked explicitly; the
// overdue scanner only detects, it never marks.
func (s *Service) MarkMissed(ctx context.Context, intakeID string) (Intake, error) {
	return s.transitionIntake(ctx, intakeID, workflow.StatusMissed, nil)
}

// MarkDelayed parks a dose that will still be taken late.
func (s *Service) MarkDelayed(ctx context.Context, intakeID string) (Intake, error) {
	return s.transitionIntake(ctx, intakeID, workflow.StatusDelayed, nil)
}

// MarkSkipped records a deliberately skipped dose.
func (s *Service) MarkSkipped(ctx context.Context, intakeID, notes string) (Intake, error) {
	payload := map[string]any{}
	if notes != "" {
		payload["notes"] = notes
	}
	return s.transitionIntake(ctx, intakeID, workflow.StatusSkipped, payload)
}

func (s *Service) transitionIntake(ctx context.Context, intakeID string, target workflow.Status, payload map[string]any) (Intake, error) {
	if intakeID == "" {
		return Intake{}, fmt.Errorf("observance: missing intake id")
	}
	if _, err := s.intakeGateway.Transition(ctx, workflow.KindMedicationIntake, intakeID, target, s.now(), payload); err != nil {
		return Intake{}, err
	}
	return s.intakes.GetByID(ctx, intakeID)
}

func (s *Service) GetIntake(ctx context.Context, intakeID string) (Intake, error) {
	return s.intakes.GetByID(ctx, intakeID)
}

func (s *Service) ListIntakes(ctx context.Context, filters IntakeFilters) ([]Intake, int, error) {
	return s.intakes.List(ctx, filters)
}

func (s *Service) IntakesForPeriod(ctx context.Context, patientID string, start, end time.Time) ([]Intake, error) {
	if patientID == "" {
		return nil, fmt.Errorf("observance: missing patient id")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("observance: period end before start")
	}
	return s.intakes.ListByPatientPeriod(ctx, patientID, start, end)
}

// AdherenceRate reports taken/(taken+missed)*100 for the patient, 0 when no
// dose has resolved either way yet.
func (s *Service) AdherenceRate(ctx context.Context, patientID string) (float64, error) {
	if patientID == "" {
		return 0, fmt.Errorf("observance: missing patient id")
	}
	taken, err := s.intakes.CountTakenByPatient(ctx, patientID)
	if err != nil {
		return 0, err
	}
	missed, err := s.intakes.CountMissedByPatient(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return workflow.AdherenceRate(taken, missed), nil
}

// FindOverdueIntakes lists doses still SCHEDULED past their scheduled time.
func (s *Service) FindOverdueIntakes(ctx context.Context, now time.Time) ([]string, error) {
	return s.intakes.FindOverdue(ctx, now)
}

type CreateReminderParams struct {
	PatientID          string
	PrescriptionItemID string
	ReminderTime       time.Time
	Type               ReminderType
	Message            string
}

// CreateReminder registers a PENDING reminder.
func (s *Service) CreateReminder(ctx context.Context, params CreateReminderParams) (Reminder, error) {
	if params.PatientID == "" {
		return Reminder{}, fmt.Errorf("observance: missing patient id")
	}
	if params.PrescriptionItemID == "" {
		return Reminder{}, fmt.Errorf("observance: missing prescription item id")
	}
	if params.ReminderTime.IsZero() {
		return Reminder{}, fmt.Errorf("observance: reminder time required")
	}
	if params.Type == "" {
		params.Type = ReminderMedicationTime
	}

	rem := Reminder{
		ID:                 s.idGenerator(),
		PatientID:          params.PatientID,
		PrescriptionItemID: params.PrescriptionItemID,
		ReminderTime:       params.ReminderTime,
		Type:               params.Type,
		Status:             workflow.InitialStatus(workflow.KindReminder),
	}
	if params.Message != "" {
		rem.Message = &params.Message
	}
	return s.reminders.Create(ctx, rem)
}

// MarkReminderSent records that the delivery channel dispatched the reminder.
func (s *Service) MarkReminderSent(ctx context.Context, reminderID string) (Reminder, error) {
	return s.transitionReminder(ctx, reminderID, workflow.StatusSent)
}

// AcknowledgeReminder records the patient's acknowledgement.
func (s *Service) AcknowledgeReminder(ctx context.Context, reminderID string) (Reminder, error) {
	return s.transitionReminder(ctx, reminderID, workflow.StatusAcknowledged)
}

// ExpireReminder retires a reminder that was never acted on.
func (s *Service) ExpireReminder(ctx context.Context, reminderID string) (Reminder, error) {
	return s.transitionReminder(ctx, reminderID, workflow.StatusExpired)
}

func (s *Service) transitionReminder(ctx context.Context, reminderID string, target workflow.Status) (Reminder, error) {
	if reminderID == "" {
		return Reminder{}, fmt.Errorf("observance: missing reminder id")
	}
	if _, err := s.reminderGateway.Transition(ctx, workflow.KindReminder, reminderID, target, s.now(), nil); err != nil {
		return Reminder{}, err
	}
	return s.reminders.GetByID(ctx, reminderID)
}

func (s *Service) ListReminders(ctx context.Context, patientID string) ([]Reminder, error) {
	if patientID == "" {
		return nil, fmt.Errorf("observance: missing patient id")
	}
	return s.reminders.ListByPatient(ctx, patientID)
}

// FindOverdueReminders lists PENDING reminders whose time has passed by more
// than grace.
func (s *Service) FindOverdueReminders(ctx context.Context, now time.Time, grace time.Duration) ([]string, error) {
	if grace < 0 {
		return nil, fmt.Errorf("observance: negative grace window")
	}
	return s.reminders.FindOverdue(ctx, now, grace)
}
