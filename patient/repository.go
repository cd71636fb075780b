package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"careflow/workflow"
)

type Repository interface {
	CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	ListAppointments(ctx context.Context, filters AppointmentFilters) ([]Appointment, int, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, cancelReason *string) (Appointment, error)

	CreatePrescription(ctx context.Context, rx Prescription) (Prescription, error)
	GetPrescription(ctx context.Context, id string) (Prescription, error)
	ListPrescriptionsByPatient(ctx context.Context, patientID string) ([]Prescription, error)
	UpdatePrescriptionStatus(ctx context.Context, id string, status PrescriptionStatus) (Prescription, error)
	FindLapsedPrescriptions(ctx context.Context, now time.Time) ([]string, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_type, scheduled_time,
	duration_minutes, reason, notes, cancel_reason, status, created_at, updated_at`

func (r *PGRepository) CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error) {
	query := fmt.Sprintf(`
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_type, scheduled_time,
			duration_minutes, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s`, appointmentColumns)

	row := r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.PatientID,
		appt.DoctorID,
		appt.AppointmentType,
		appt.ScheduledTime,
		appt.DurationMinutes,
		appt.Reason,
		appt.Status,
	)
	created, err := scanAppointment(row)
	if err != nil {
		return Appointment{}, workflow.StorageError("patient: create appointment", err)
	}
	return created, nil
}

func (r *PGRepository) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE id = $1`, appointmentColumns)
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, workflow.ErrNotFound
		}
		return Appointment{}, workflow.StorageError("patient: get appointment", err)
	}
	return appt, nil
}

func (r *PGRepository) ListAppointments(ctx context.Context, filters AppointmentFilters) ([]Appointment, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}
	if filters.PatientID != "" {
		where = append(where, fmt.Sprintf("patient_id=$%d", len(args)+1))
		args = append(args, filters.PatientID)
	}
	if filters.DoctorID != "" {
		where = append(where, fmt.Sprintf("doctor_id=$%d", len(args)+1))
		args = append(args, filters.DoctorID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM appointments%s ORDER BY scheduled_time DESC LIMIT %d OFFSET %d`,
		appointmentColumns, whereClause, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, workflow.StorageError("patient: list appointments", err)
	}
	defer rows.Close()

	list := []Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patient: scan appointment: %w", err)
		}
		list = append(list, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, workflow.StorageError("patient: iterate appointments", err)
	}

	countQuery := "SELECT COUNT(*) FROM appointments" + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, workflow.StorageError("patient: count appointments", err)
	}

	return list, total, nil
}

func (r *PGRepository) UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, cancelReason *string) (Appointment, error) {
	query := fmt.Sprintf(`
		UPDATE appointments
		SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = now()
		WHERE id = $1
		RETURNING %s`, appointmentColumns)

	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, status, cancelReason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, workflow.ErrNotFound
		}
		return Appointment{}, workflow.StorageError("patient: update appointment", err)
	}
	return appt, nil
}

const prescriptionColumns = `id, patient_id, doctor_id, prescribed_date, valid_until, notes,
	status, created_at, updated_at`

// CreatePrescription inserts the prescription and its items in one
// transaction.
func (r *PGRepository) CreatePrescription(ctx context.Context, rx Prescription) (Prescription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Prescription{}, workflow.StorageError("patient: begin prescription", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO prescriptions (id, patient_id, doctor_id, prescribed_date, valid_until, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, prescriptionColumns)

	row := tx.QueryRow(ctx, query,
		rx.ID,
		rx.PatientID,
		rx.DoctorID,
		rx.PrescribedDate,
		rx.ValidUntil,
		rx.Notes,
		rx.Status,
	)
	created, err := scanPrescription(row)
	if err != nil {
		return Prescription{}, workflow.StorageError("patient: create prescription", err)
	}

	for _, item := range rx.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO prescription_items (id, prescription_id, medication_name, dosage, frequency,
				duration_days, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, created.ID, item.MedicationName, item.Dosage, item.Frequency,
			item.DurationDays, item.Instructions)
		if err != nil {
			return Prescription{}, workflow.StorageError("patient: create prescription item", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Prescription{}, workflow.StorageError("patient: commit prescription", err)
	}

	created.Items = rx.Items
	for i := range created.Items {
		created.Items[i].PrescriptionID = created.ID
	}
	return created, nil
}

func (r *PGRepository) GetPrescription(ctx context.Context, id string) (Prescription, error) {
	query := fmt.Sprintf(`SELECT %s FROM prescriptions WHERE id = $1`, prescriptionColumns)
	rx, err := scanPrescription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Prescription{}, workflow.ErrNotFound
		}
		return Prescription{}, workflow.StorageError("patient: get prescription", err)
	}

	items, err := r.prescriptionItems(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	rx.Items = items
	return rx, nil
}

func (r *PGRepository) ListPrescriptionsByPatient(ctx context.Context, patientID string) ([]Prescription, error) {
	query := fmt.Sprintf(`SELECT %s FROM prescriptions WHERE patient_id = $1 ORDER BY prescribed_date DESC`, prescriptionColumns)
	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, workflow.StorageError("patient: list prescriptions", err)
	}
	defer rows.Close()

	list := []Prescription{}
	for rows.Next() {
		rx, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("patient: scan prescription: %w", err)
		}
		list = append(list, rx)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("patient: iterate prescriptions", err)
	}

	for i := range list {
		items, err := r.prescriptionItems(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Items = items
	}
	return list, nil
}

func (r *PGRepository) UpdatePrescriptionStatus(ctx context.Context, id string, status PrescriptionStatus) (Prescription, error) {
	query := fmt.Sprintf(`
		UPDATE prescriptions SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING %s`, prescriptionColumns)

	rx, err := scanPrescription(r.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Prescription{}, workflow.ErrNotFound
		}
		return Prescription{}, workflow.StorageError("patient: update prescription", err)
	}

	items, err := r.prescriptionItems(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	rx.Items = items
	return rx, nil
}

// FindLapsedPrescriptions returns ids of ACTIVE prescriptions whose validity
// window has closed.
func (r *PGRepository) FindLapsedPrescriptions(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT id FROM prescriptions
		WHERE status = $1 AND valid_until IS NOT NULL AND valid_until <= $2
		ORDER BY valid_until
	`
	rows, err := r.pool.Query(ctx, query, PrescriptionActive, now)
	if err != nil {
		return nil, workflow.StorageError("patient: find lapsed", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("patient: scan lapsed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("patient: iterate lapsed", err)
	}
	return ids, nil
}

func (r *PGRepository) prescriptionItems(ctx context.Context, prescriptionID string) ([]PrescriptionItem, error) {
	const query = `
		SELECT id, prescription_id, medication_name, dosage, frequency, duration_days, instructions
		FROM prescription_items WHERE prescription_id = $1
		ORDER BY medication_name
	`
	rows, err := r.pool.Query(ctx, query, prescriptionID)
	if err != nil {
		return nil, workflow.StorageError("patient: prescription items", err)
	}
	defer rows.Close()

	items := []PrescriptionItem{}
	for rows.Next() {
		var item PrescriptionItem
		if err := rows.Scan(&item.ID, &item.PrescriptionID, &item.MedicationName, &item.Dosage,
			&item.Frequency, &item.DurationDays, &item.Instructions); err != nil {
			return nil, fmt.Errorf("patient: scan prescription item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("patient: iterate items", err)
	}
	return items, nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var appt Appointment
	return appt, row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.DoctorID,
		&appt.AppointmentType,
		&appt.ScheduledTime,
		&appt.DurationMinutes,
		&appt.Reason,
		&appt.Notes,
		&appt.CancelReason,
		&appt.Status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
}

func scanPrescription(row pgx.Row) (Prescription, error) {
	var rx Prescription
	return rx, row.Scan(
		&rx.ID,
		&rx.PatientID,
		&rx.DoctorID,
		&rx.PrescribedDate,
		&rx.ValidUntil,
		&rx.Notes,
		&rx.Status,
		&rx.CreatedAt,
		&rx.UpdatedAt,
	)
}
