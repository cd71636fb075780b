package patient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"careflow/workflow"
)

type fakeRepo struct {
	appointments  map[string]*Appointment
	prescriptions map[string]*Prescription
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		appointments:  map[string]*Appointment{},
		prescriptions: map[string]*Prescription{},
	}
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error) {
	f.appointments[appt.ID] = &appt
	return appt, nil
}

func (f *fakeRepo) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	appt, ok := f.appointments[id]
	if !ok {
		return Appointment{}, workflow.ErrNotFound
	}
	return *appt, nil
}

func (f *fakeRepo) ListAppointments(ctx context.Context, filters AppointmentFilters) ([]Appointment, int, error) {
	out := []Appointment{}
	for _, appt := range f.appointments {
		if filters.PatientID != "" && appt.PatientID != filters.PatientID {
			continue
		}
		out = append(out, *appt)
	}
	return out, len(out), nil
}

func (f *fakeRepo) UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, cancelReason *string) (Appointment, error) {
	appt, ok := f.appointments[id]
	if !ok {
		return Appointment{}, workflow.ErrNotFound
	}
	appt.Status = status
	if cancelReason != nil {
		appt.CancelReason = cancelReason
	}
	return *appt, nil
}

func (f *fakeRepo) CreatePrescription(ctx context.Context, rx Prescription) (Prescription, error) {
	for i := range rx.Items {
		rx.Items[i].PrescriptionID = rx.ID
	}
	f.prescriptions[rx.ID] = &rx
	return rx, nil
}

func (f *fakeRepo) GetPrescription(ctx context.Context, id string) (Prescription, error) {
	rx, ok := f.prescriptions[id]
	if !ok {
		return Prescription{}, workflow.ErrNotFound
	}
	return *rx, nil
}

func (f *fakeRepo) ListPrescriptionsByPatient(ctx context.Context, patientID string) ([]Prescription, error) {
	out := []Prescription{}
	for _, rx := range f.prescriptions {
		if rx.PatientID == patientID {
			out = append(out, *rx)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdatePrescriptionStatus(ctx context.Context, id string, status PrescriptionStatus) (Prescription, error) {
	rx, ok := f.prescriptions[id]
	if !ok {
		return Prescription{}, workflow.ErrNotFound
	}
	rx.Status = status
	return *rx, nil
}

func (f *fakeRepo) FindLapsedPrescriptions(ctx context.Context, now time.Time) ([]string, error) {
	ids := []string{}
	for _, rx := range f.prescriptions {
		if rx.Status == PrescriptionActive && rx.ValidUntil != nil && !rx.ValidUntil.After(now) {
			ids = append(ids, rx.ID)
		}
	}
	return ids, nil
}

func newTestService(repo *fakeRepo, now time.Time) *Service {
	counter := 0
	return NewService(repo, zerolog.Nop()).
		WithClock(func() time.Time { return now }).
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("pat-%d", counter)
		})
}

func TestAppointmentLifecycle(t *testing.T) {
	t0 := time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeRepo(), t0)

	appt, err := svc.BookAppointment(context.Background(), BookAppointmentParams{
		PatientID:     "patient-1",
		DoctorID:      "doctor-1",
		ScheduledTime: t0.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != AppointmentScheduled {
		t.Errorf("status = %s, want SCHEDULED", appt.Status)
	}
	if appt.AppointmentType != TypeConsultation {
		t.Errorf("type = %s, want CONSULTATION default", appt.AppointmentType)
	}
	if appt.DurationMinutes != 30 {
		t.Errorf("duration = %d, want 30 default", appt.DurationMinutes)
	}

	if _, err := svc.ConfirmAppointment(context.Background(), appt.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.StartAppointment(context.Background(), appt.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := svc.CompleteAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != AppointmentCompleted {
		t.Errorf("status = %s, want COMPLETED", done.Status)
	}

	if _, err := svc.CancelAppointment(context.Background(), appt.ID, "late"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel after completion: err = %v, want ErrInvalidState", err)
	}
}

func TestCompleteAppointment_RequiresInProgress(t *testing.T) {
	t0 := time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeRepo(), t0)

	appt, err := svc.BookAppointment(context.Background(), BookAppointmentParams{
		PatientID:     "patient-1",
		DoctorID:      "doctor-1",
		ScheduledTime: t0,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.CompleteAppointment(context.Background(), appt.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("complete from SCHEDULED: err = %v, want ErrInvalidState", err)
	}
}

func TestCancelAppointment_KeepsReason(t *testing.T) {
	t0 := time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeRepo(), t0)

	appt, err := svc.BookAppointment(context.Background(), BookAppointmentParams{
		PatientID:     "patient-1",
		DoctorID:      "doctor-1",
		ScheduledTime: t0,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	cancelled, err := svc.CancelAppointment(context.Background(), appt.ID, "patient request")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != "patient request" {
		t.Errorf("cancel reason not kept: %v", cancelled.CancelReason)
	}
}

func TestIssuePrescription(t *testing.T) {
	t0 := time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeRepo(), t0)

	if _, err := svc.IssuePrescription(context.Background(), IssuePrescriptionParams{
		PatientID: "patient-1",
		DoctorID:  "doctor-1",
	}); err == nil {
		t.Fatal("expected error for empty item list")
	}

	rx, err := svc.IssuePrescription(context.Background(), IssuePrescriptionParams{
		PatientID: "patient-1",
		DoctorID:  "doctor-1",
		Items: []PrescriptionItem{
			{MedicationName: "amoxicillin", Dosage: "500mg", Frequency: "3x daily", DurationDays: 7},
		},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rx.Status != PrescriptionActive {
		t.Errorf("status = %s, want ACTIVE", rx.Status)
	}
	if !rx.PrescribedDate.Equal(t0) {
		t.Errorf("prescribed date = %v, want %v", rx.PrescribedDate, t0)
	}
	if len(rx.Items) != 1 || rx.Items[0].PrescriptionID != rx.ID {
		t.Errorf("items not linked: %+v", rx.Items)
	}
}

func TestPrescriptionStatusMoves(t *testing.T) {
	t0 := time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeRepo(), t0)

	rx, err := svc.IssuePrescription(context.Background(), IssuePrescriptionParams{
		PatientID: "patient-1",
		DoctorID:  "doctor-1",
		Items: []PrescriptionItem{
			{MedicationName: "ibuprofen", Dosage: "200mg", Frequency: "as needed"},
		},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	done, err := svc.CompletePrescription(context.Background(), rx.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != PrescriptionCompleted {
		t.Errorf("status = %s, want COMPLETED", done.Status)
	}

	if _, err := svc.CancelPrescription(context.Background(), rx.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel after completion: err = %v, want ErrInvalidState", err)
	}
}

func TestFindLapsedPrescriptions(t *testing.T) {
	t0 := time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeRepo(), t0)

	until := t0.Add(30 * 24 * time.Hour)
	rx, err := svc.IssuePrescription(context.Background(), IssuePrescriptionParams{
		PatientID:  "patient-1",
		DoctorID:   "doctor-1",
		ValidUntil: &until,
		Items: []PrescriptionItem{
			{MedicationName: "metformin", Dosage: "850mg", Frequency: "2x daily"},
		},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	before, err := svc.FindLapsedPrescriptions(context.Background(), until.Add(-time.Hour))
	if err != nil {
		t.Fatalf("find lapsed: %v", err)
	}
	if len(before) != 0 {
		t.Errorf("prescription inside validity reported lapsed: %v", before)
	}

	after, err := svc.FindLapsedPrescriptions(context.Background(), until)
	if err != nil {
		t.Fatalf("find lapsed: %v", err)
	}
	if len(after) != 1 || after[0] != rx.ID {
		t.Errorf("lapsed = %v, want [%s]", after, rx.ID)
	}
}
