package observance

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

// IntakeRepository is the intake data access required by the service and the
// workflow.Store its transitions flow through.
type IntakeRepository interface {
	workflow.Store

	Create(ctx context.Context, intake Intake) (Intake, error)
	GetByID(ctx context.Context, id string) (Intake, error)
	List(ctx context.Context, filters IntakeFilters) ([]Intake, int, error)
	ListByPatientPeriod(ctx context.Context, patientID string, start, end time.Time) ([]Intake, error)
	FindOverdue(ctx context.Context, now time.Time) ([]string, error)
	CountTakenByPatient(ctx context.Context, patientID string) (int64, error)
	CountMissedByPatient(ctx context.Context, patientID string) (int64, error)
}

type PGIntakeRepository struct {
	pool *pgxpool.Pool
}

func NewIntakeRepository(pool *pgxpool.Pool) *PGIntakeRepository {
	return &PGIntakeRepository{pool: pool}
}

const intakeColumns = `id, patient_id, prescription_item_id, scheduled_time, actual_time,
	status, notes, side_effects, reminder_sent, version, created_at, updated_at`

func (r *PGIntakeRepository) Create(ctx context.Context, intake Intake) (Intake, error) {
	query := fmt.Sprintf(`
		INSERT INTO medication_intakes (id, patient_id, prescription_item_id, scheduled_time, status, reminder_sent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, intakeColumns)

	row := r.pool.QueryRow(ctx, query,
		intake.ID,
		intake.PatientID,
		intake.PrescriptionItemID,
		intake.ScheduledTime,
		intake.Status,
		intake.ReminderSent,
	)
	created, err := scanIntake(row)
	if err != nil {
		return Intake{}, workflow.StorageError("observance: create intake", err)
	}
	return created, nil
}

func (r *PGIntakeRepository) GetByID(ctx context.Context, id string) (Intake, error) {
	query := fmt.Sprintf(`SELECT %s FROM medication_intakes WHERE id = $1`, intakeColumns)
	intake, err := scanIntake(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Intake{}, workflow.ErrNotFound
		}
		return Intake{}, workflow.StorageError("observance: get intake", err)
	}
	return intake, nil
}

func (r *PGIntakeRepository) List(ctx context.Context, filters IntakeFilters) ([]Intake, int, error) {
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
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM medication_intakes%s ORDER BY scheduled_time DESC LIMIT %d OFFSET %d`,
		intakeColumns, whereClause, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, workflow.StorageError("observance: list intakes", err)
	}
	defer rows.Close()

	list := []Intake{}
	for rows.Next() {
		intake, err := scanIntake(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("observance: scan intake: %w", err)
		}
		list = append(list, intake)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, workflow.StorageError("observance: iterate intakes", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM medication_intakes"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, workflow.StorageError("observance: count intakes", err)
	}
	return list, total, nil
}

func (r *PGIntakeRepository) ListByPatientPeriod(ctx context.Context, patientID string, start, end time.Time) ([]Intake, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM medication_intakes
		WHERE patient_id = $1 AND scheduled_time BETWEEN $2 AND $3
		ORDER BY scheduled_time`, intakeColumns)

	rows, err := r.pool.Query(ctx, query, patientID, start, end)
	if err != nil {
		return nil, workflow.StorageError("observance: list period", err)
	}
	defer rows.Close()

	list := []Intake{}
	for rows.Next() {
		intake, err := scanIntake(rows)
		if err != nil {
			return nil, fmt.Errorf("observance: scan intake: %w", err)
		}
		list = append(list, intake)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("observance: iterate period", err)
	}
	return list, nil
}

// FindOverdue returns ids of intakes still SCHEDULED whose scheduled time has
// passed. Marking them MISSED remains an explicit gateway transition.
func (r *PGIntakeRepository) FindOverdue(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT id FROM medication_intakes
		WHERE status = $1 AND scheduled_time <= $2
		ORDER BY scheduled_time
	`
	return queryIDs(ctx, r.pool, "observance: find overdue intakes", query, workflow.StatusScheduled, now)
}

func (r *PGIntakeRepository) CountTakenByPatient(ctx context.Context, patientID string) (int64, error) {
	return r.countByStatus(ctx, patientID, workflow.StatusTaken)
}

func (r *PGIntakeRepository) CountMissedByPatient(ctx context.Context, patientID string) (int64, error) {
	return r.countByStatus(ctx, patientID, workflow.StatusMissed)
}

func (r *PGIntakeRepository) countByStatus(ctx context.Context, patientID string, status workflow.Status) (int64, error) {
	const query = `SELECT COUNT(*) FROM medication_intakes WHERE patient_id = $1 AND status = $2`
	var count int64
	if err := r.pool.QueryRow(ctx, query, patientID, status).Scan(&count); err != nil {
		return 0, workflow.StorageError("observance: count intakes", err)
	}
	return count, nil
}

// Load implements workflow.Store.
func (r *PGIntakeRepository) Load(ctx context.Context, kind workflow.Kind, id string) (workflow.Snapshot, error) {
	const query = `SELECT status, version, actual_time FROM medication_intakes WHERE id = $1`
	var (
		status     workflow.Status
		version    int
		actualTime *time.Time
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&status, &version, &actualTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.Snapshot{}, workflow.ErrNotFound
		}
		return workflow.Snapshot{}, workflow.StorageError("observance: load intake snapshot", err)
	}

	snap := workflow.Snapshot{
		Kind:       workflow.KindMedicationIntake,
		ID:         id,
		Status:     status,
		Version:    version,
		Milestones: map[string]time.Time{},
		Fields:     map[string]any{},
	}
	if actualTime != nil {
		snap.Milestones["actual_time"] = *actualTime
	}
	return snap, nil
}

// Save implements workflow.Store under the optimistic version check.
func (r *PGIntakeRepository) Save(ctx context.Context, snap workflow.Snapshot, expectedVersion int) (workflow.Snapshot, error) {
	const query = `
		UPDATE medication_intakes
		SET status = $2,
		    actual_time = COALESCE(actual_time, $3),
		    notes = COALESCE($4, notes),
		    side_effects = COALESCE($5, side_effects),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $6
		RETURNING version
	`
	var version int
	err := r.pool.QueryRow(ctx, query,
		snap.ID,
		snap.Status,
		milestone(snap, "actual_time"),
		fieldString(snap, "notes"),
		fieldString(snap, "side_effects"),
		expectedVersion,
	).Scan(&version)
	if err == nil {
		snap.Version = version
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return workflow.Snapshot{}, workflow.StorageError("observance: save intake snapshot", err)
	}
	return workflow.Snapshot{}, resolveZeroRows(ctx, r.pool, "medication_intakes", snap.ID)
}

// ReminderRepository mirrors IntakeRepository for the reminder lifecycle.
type ReminderRepository interface {
	workflow.Store

	Create(ctx context.Context, rem Reminder) (Reminder, error)
	GetByID(ctx context.Context, id string) (Reminder, error)
	ListByPatient(ctx context.Context, patientID string) ([]Reminder, error)
	FindOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]string, error)
}

type PGReminderRepository struct {
	pool *pgxpool.Pool
}

func NewReminderRepository(pool *pgxpool.Pool) *PGReminderRepository {
	return &PGReminderRepository{pool: pool}
}

const reminderColumns = `id, patient_id, prescription_item_id, reminder_time, type, status,
	message, sent_at, acknowledged_at, version, created_at, updated_at`

func (r *PGReminderRepository) Create(ctx context.Context, rem Reminder) (Reminder, error) {
	query := fmt.Sprintf(`
		INSERT INTO reminders (id, patient_id, prescription_item_id, reminder_time, type, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, reminderColumns)

	row := r.pool.QueryRow(ctx, query,
		rem.ID,
		rem.PatientID,
		rem.PrescriptionItemID,
		rem.ReminderTime,
		rem.Type,
		rem.Status,
		rem.Message,
	)
	created, err := scanReminder(row)
	if err != nil {
		return Reminder{}, workflow.StorageError("observance: create reminder", err)
	}
	return created, nil
}

func (r *PGReminderRepository) GetByID(ctx context.Context, id string) (Reminder, error) {
	query := fmt.Sprintf(`SELECT %s FROM reminders WHERE id = $1`, reminderColumns)
	rem, err := scanReminder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reminder{}, workflow.ErrNotFound
		}
		return Reminder{}, workflow.StorageError("observance: get reminder", err)
	}
	return rem, nil
}

func (r *PGReminderRepository) ListByPatient(ctx context.Context, patientID string) ([]Reminder, error) {
	query := fmt.Sprintf(`SELECT %s FROM reminders WHERE patient_id = $1 ORDER BY reminder_time DESC`, reminderColumns)
	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, workflow.StorageError("observance: list reminders", err)
	}
	defer rows.Close()

	list := []Reminder{}
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("observance: scan reminder: %w", err)
		}
		list = append(list, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("observance: iterate reminders", err)
	}
	return list, nil
}

// FindOverdue returns ids of PENDING reminders whose reminder time has passed
// by more than the grace window.
func (r *PGReminderRepository) FindOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]string, error) {
	const query = `
		SELECT id FROM reminders
		WHERE status = $1 AND reminder_time < $2
		ORDER BY reminder_time
	`
	return queryIDs(ctx, r.pool, "observance: find overdue reminders", query, workflow.StatusPending, now.Add(-grace))
}

// Load implements workflow.Store.
func (r *PGReminderRepository) Load(ctx context.Context, kind workflow.Kind, id string) (workflow.Snapshot, error) {
	const query = `SELECT status, version, sent_at, acknowledged_at FROM reminders WHERE id = $1`
	var (
		status         workflow.Status
		version        int
		sentAt         *time.Time
		acknowledgedAt *time.Time
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&status, &version, &sentAt, &acknowledgedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.Snapshot{}, workflow.ErrNotFound
		}
		return workflow.Snapshot{}, workflow.StorageError("observance: load reminder snapshot", err)
	}

	snap := workflow.Snapshot{
		Kind:       workflow.KindReminder,
		ID:         id,
		Status:     status,
		Version:    version,
		Milestones: map[string]time.Time{},
		Fields:     map[string]any{},
	}
	if sentAt != nil {
		snap.Milestones["sent_at"] = *sentAt
	}
	if acknowledgedAt != nil {
		snap.Milestones["acknowledged_at"] = *acknowledgedAt
	}
	return snap, nil
}

// Save implements workflow.Store.
func (r *PGReminderRepository) Save(ctx context.Context, snap workflow.Snapshot, expectedVersion int) (workflow.Snapshot, error) {
	const query = `
		UPDATE reminders
		SET status = $2,
		    sent_at = COALESCE(sent_at, $3),
		    acknowledged_at = COALESCE(acknowledged_at, $4),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING version
	`
	var version int
	err := r.pool.QueryRow(ctx, query,
		snap.ID,
		snap.Status,
		milestone(snap, "sent_at"),
		milestone(snap, "acknowledged_at"),
		expectedVersion,
	).Scan(&version)
	if err == nil {
		snap.Version = version
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return workflow.Snapshot{}, workflow.StorageError("observance: save reminder snapshot", err)
	}
	return workflow.Snapshot{}, resolveZeroRows(ctx, r.pool, "reminders", snap.ID)
}

func resolveZeroRows(ctx context.Context, pool *pgxpool.Pool, table, id string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return workflow.StorageError("observance: verify snapshot", err)
	}
	if !exists {
		return workflow.ErrNotFound
	}
	return workflow.ErrConflict
}

func queryIDs(ctx context.Context, pool *pgxpool.Pool, op, query string, args ...any) ([]string, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, workflow.StorageError(op, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan id: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError(op, err)
	}
	return ids, nil
}

func milestone(snap workflow.Snapshot, key string) *time.Time {
	if t, ok := snap.Milestones[key]; ok {
		return &t
	}
	return nil
}

func fieldString(snap workflow.Snapshot, key string) *string {
	if v, ok := snap.Fields[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

func scanIntake(row pgx.Row) (Intake, error) {
	var in Intake
	return in, row.Scan(
		&in.ID,
		&in.PatientID,
		&in.PrescriptionItemID,
		&in.ScheduledTime,
		&in.ActualTime,
		&in.Status,
		&in.Notes,
		&in.SideEffects,
		&in.ReminderSent,
		&in.Version,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
}

func scanReminder(row pgx.Row) (Reminder, error) {
	var rem Reminder
	return rem, row.Scan(
		&rem.ID,
		&rem.PatientID,
		&rem.PrescriptionItemID,
		&rem.ReminderTime,
		&rem.Type,
		&rem.Status,
		&rem.Message,
		&rem.SentAt,
		&rem.AcknowledgedAt,
		&rem.Version,
		&rem.CreatedAt,
		&rem.UpdatedAt,
	)
}
