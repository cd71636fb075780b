package observance

import (
	"time"

	"careflow/workflow"
)

// Intake is one scheduled dose of a prescribed medication. It resolves to
// TAKEN, MISSED or SKIPPED (possibly via DELAYED); only resolved doses feed
// the adherence rate.
type Intake struct {
	ID                 string
	PatientID          string
	PrescriptionItemID string
	ScheduledTime      time.Time
	ActualTime         *time.Time
	Status             workflow.Status
	Notes              *string
	SideEffects        *string
	ReminderSent       bool
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReminderType classifies what a reminder nudges the patient about.
type ReminderType string

const (
	ReminderMedicationTime  ReminderType = "MEDICATION_TIME"
	ReminderRefillNeeded    ReminderType = "REFILL_NEEDED"
	ReminderAppointment     ReminderType = "APPOINTMENT_REMINDER"
	ReminderSideEffectCheck ReminderType = "SIDE_EFFECT_CHECK"
)

// Reminder is a patient-facing nudge tied to a prescription item. Delivery
// mechanics live outside this system; the workflow only tracks the
// PENDING -> SENT -> ACKNOWLEDGED / EXPIRED lifecycle.
type Reminder struct {
	ID                 string
	PatientID          string
	PrescriptionItemID string
	ReminderTime       time.Time
	Type               ReminderType
	Status             workflow.Status
	Message            *string
	SentAt             *time.Time
	AcknowledgedAt     *time.Time
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IntakeFilters narrows paged intake listings.
type IntakeFilters struct {
	PatientID string
	Status    workflow.Status
	Page      int
	PageSize  int
}
