package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidState = errors.New("patient: invalid state for operation")

// appointmentMoves is the booking state graph. Kept local: appointments are
// scheduling records, not engine workflows.
var appointmentMoves = map[AppointmentStatus][]AppointmentStatus{
	AppointmentScheduled:  {AppointmentConfirmed, AppointmentInProgress, AppointmentCancelled, AppointmentNoShow},
	AppointmentConfirmed:  {AppointmentInProgress, AppointmentCancelled, AppointmentNoShow},
	AppointmentInProgress: {AppointmentCompleted, AppointmentCancelled},
}

type Service struct {
	repo        Repository
	log         zerolog.Logger
	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		log:         log,
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

type BookAppointmentParams struct {
	PatientID       string
	DoctorID        string
	AppointmentType AppointmentType
	ScheduledTime   time.Time
	DurationMinutes int
	Reason          *string
}

func (s *Service) BookAppointment(ctx context.Context, params BookAppointmentParams) (Appointment, error) {
	if params.PatientID == "" {
		return Appointment{}, fmt.Errorf("patient: missing patient id")
	}
	if params.DoctorID == "" {
		return Appointment{}, fmt.Errorf("patient: missing doctor id")
	}
	if params.ScheduledTime.IsZero() {
		return Appointment{}, fmt.Errorf("patient: scheduled time required")
	}
	if params.AppointmentType == "" {
		params.AppointmentType = TypeConsultation
	}
	if params.DurationMinutes <= 0 {
		params.DurationMinutes = 30
	}

	appt := Appointment{
		ID:              s.idGenerator(),
		PatientID:       params.PatientID,
		DoctorID:        params.DoctorID,
		AppointmentType: params.AppointmentType,
		ScheduledTime:   params.ScheduledTime,
		DurationMinutes: params.DurationMinutes,
		Reason:          params.Reason,
		Status:          AppointmentScheduled,
	}
	return s.repo.CreateAppointment(ctx, appt)
}

func (s *Service) ConfirmAppointment(ctx context.Context, id string) (Appointment, error) {
	return s.moveAppointment(ctx, id, AppointmentConfirmed, nil)
}

func (s *Service) StartAppointment(ctx context.Context, id string) (Appointment, error) {
	return s.moveAppointment(ctx, id, AppointmentInProgress, nil)
}

func (s *Service) CompleteAppointment(ctx context.Context, id string) (Appointment, error) {
	return s.moveAppointment(ctx, id, AppointmentCompleted, nil)
}

func (s *Service) CancelAppointment(ctx context.Context, id, reason string) (Appointment, error) {
	var cancelReason *string
	if reason != "" {
		cancelReason = &reason
	}
	return s.moveAppointment(ctx, id, AppointmentCancelled, cancelReason)
}

func (s *Service) MarkAppointmentNoShow(ctx context.Context, id string) (Appointment, error) {
	return s.moveAppointment(ctx, id, AppointmentNoShow, nil)
}

func (s *Service) moveAppointment(ctx context.Context, id string, target AppointmentStatus, cancelReason *string) (Appointment, error) {
	if id == "" {
		return Appointment{}, fmt.Errorf("patient: missing appointment id")
	}
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return Appointment{}, err
	}

	allowed := false
	for _, next := range appointmentMoves[appt.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return Appointment{}, fmt.Errorf("patient: appointment %s -> %s: %w", appt.Status, target, ErrInvalidState)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, target, cancelReason)
	if err != nil {
		return Appointment{}, err
	}
	s.log.Info().
		Str("appointment_id", id).
		Str("from", string(appt.Status)).
		Str("to", string(target)).
		Msg("appointment status changed")
	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, filters AppointmentFilters) ([]Appointment, int, error) {
	return s.repo.ListAppointments(ctx, filters)
}

type IssuePrescriptionParams struct {
	PatientID  string
	DoctorID   string
	ValidUntil *time.Time
	Notes      *string
	Items      []PrescriptionItem
}

// IssuePrescription creates an ACTIVE prescription with at least one
// medication line.
func (s *Service) IssuePrescription(ctx context.Context, params IssuePrescriptionParams) (Prescription, error) {
	if params.PatientID == "" {
		return Prescription{}, fmt.Errorf("patient: missing patient id")
	}
	if params.DoctorID == "" {
		return Prescription{}, fmt.Errorf("patient: missing doctor id")
	}
	if len(params.Items) == 0 {
		return Prescription{}, fmt.Errorf("patient: prescription needs at least one item")
	}
	for _, item := range params.Items {
		if item.MedicationName == "" || item.Dosage == "" || item.Frequency == "" {
			return Prescription{}, fmt.Errorf("patient: incomplete prescription item")
		}
	}

	rx := Prescription{
		ID:             s.idGenerator(),
		PatientID:      params.PatientID,
		DoctorID:       params.DoctorID,
		PrescribedDate: s.now(),
		ValidUntil:     params.ValidUntil,
		Notes:          params.Notes,
		Status:         PrescriptionActive,
	}
	for _, item := range params.Items {
		item.ID = s.idGenerator()
		rx.Items = append(rx.Items, item)
	}
	return s.repo.CreatePrescription(ctx, rx)
}

func (s *Service) CompletePrescription(ctx context.Context, id string) (Prescription, error) {
	return s.movePrescription(ctx, id, PrescriptionCompleted)
}

func (s *Service) CancelPrescription(ctx context.Context, id string) (Prescription, error) {
	return s.movePrescription(ctx, id, PrescriptionCancelled)
}

// ExpirePrescription retires an active prescription past its validity.
func (s *Service) ExpirePrescription(ctx context.Context, id string) (Prescription, error) {
	return s.movePrescription(ctx, id, PrescriptionExpired)
}

func (s *Service) movePrescription(ctx context.Context, id string, target PrescriptionStatus) (Prescription, error) {
	if id == "" {
		return Prescription{}, fmt.Errorf("patient: missing prescription id")
	}
	rx, err := s.repo.GetPrescription(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	if rx.Status != PrescriptionActive {
		return Prescription{}, fmt.Errorf("patient: prescription %s -> %s: %w", rx.Status, target, ErrInvalidState)
	}
	return s.repo.UpdatePrescriptionStatus(ctx, id, target)
}

func (s *Service) GetPrescription(ctx context.Context, id string) (Prescription, error) {
	return s.repo.GetPrescription(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, patientID string) ([]Prescription, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient: missing patient id")
	}
	return s.repo.ListPrescriptionsByPatient(ctx, patientID)
}

// FindLapsedPrescriptions lists ids of ACTIVE prescriptions whose validity
// window closed as of now.
func (s *Service) FindLapsedPrescriptions(ctx context.Context, now time.Time) ([]string, error) {
	return s.repo.FindLapsedPrescriptions(ctx, now)
}
