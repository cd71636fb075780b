package telemedicine

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

// Repository is the data access required by the service. It doubles as the
// workflow.Store the transition gateway writes through.
type Repository interface {
	workflow.Store

	Create(ctx context.Context, cons Consultation) (Consultation, error)
	GetByID(ctx context.Context, id string) (Consultation, error)
	List(ctx context.Context, filters Filters) ([]Consultation, int, error)
	FindOverdue(ctx context.Context, now time.Time) ([]string, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const consultationColumns = `id, patient_id, doctor_id, scheduled_time, room_id, status,
	consultation_notes, cancel_reason, technical_issue, started_at, ended_at, duration_minutes,
	version, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, cons Consultation) (Consultation, error) {
	query := fmt.Sprintf(`
		INSERT INTO video_consultations (id, patient_id, doctor_id, scheduled_time, room_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, consultationColumns)

	row := r.pool.QueryRow(ctx, query,
		cons.ID,
		cons.PatientID,
		cons.DoctorID,
		cons.ScheduledTime,
		cons.RoomID,
		cons.Status,
	)
	created, err := scanConsultation(row)
	if err != nil {
		return Consultation{}, workflow.StorageError("telemedicine: create", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Consultation, error) {
	query := fmt.Sprintf(`SELECT %s FROM video_consultations WHERE id = $1`, consultationColumns)
	cons, err := scanConsultation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consultation{}, workflow.ErrNotFound
		}
		return Consultation{}, workflow.StorageError("telemedicine: get", err)
	}
	return cons, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Consultation, int, error) {
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

	query := fmt.Sprintf(`SELECT %s FROM video_consultations%s ORDER BY scheduled_time DESC LIMIT %d OFFSET %d`,
		consultationColumns, whereClause, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, workflow.StorageError("telemedicine: list", err)
	}
	defer rows.Close()

	list := []Consultation{}
	for rows.Next() {
		cons, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("telemedicine: scan consultation: %w", err)
		}
		list = append(list, cons)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, workflow.StorageError("telemedicine: iterate", err)
	}

	countQuery := "SELECT COUNT(*) FROM video_consultations" + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, workflow.StorageError("telemedicine: count", err)
	}

	return list, total, nil
}

// FindOverdue returns ids of consultations still SCHEDULED whose scheduled
// slot has passed. Read-only; marking them NO_SHOW is a separate transition.
func (r *PGRepository) FindOverdue(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT id FROM video_consultations
		WHERE status = $1 AND scheduled_time <= $2
		ORDER BY scheduled_time
	`
	rows, err := r.pool.Query(ctx, query, workflow.StatusScheduled, now)
	if err != nil {
		return nil, workflow.StorageError("telemedicine: find overdue", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("telemedicine: scan overdue id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("telemedicine: iterate overdue", err)
	}
	return ids, nil
}

// Load implements workflow.Store.
func (r *PGRepository) Load(ctx context.Context, kind workflow.Kind, id string) (workflow.Snapshot, error) {
	const query = `
		SELECT status, version, started_at, ended_at
		FROM video_consultations WHERE id = $1
	`
	var (
		status    workflow.Status
		version   int
		startedAt *time.Time
		endedAt   *time.Time
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&status, &version, &startedAt, &endedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.Snapshot{}, workflow.ErrNotFound
		}
		return workflow.Snapshot{}, workflow.StorageError("telemedicine: load snapshot", err)
	}

	snap := workflow.Snapshot{
		Kind:       workflow.KindVideoConsultation,
		ID:         id,
		Status:     status,
		Version:    version,
		Milestones: map[string]time.Time{},
		Fields:     map[string]any{},
	}
	if startedAt != nil {
		snap.Milestones["started_at"] = *startedAt
	}
	if endedAt != nil {
		snap.Milestones["ended_at"] = *endedAt
	}
	return snap, nil
}

// Save implements workflow.Store. Duration is derived in SQL from the stored
// started_at and the incoming ended_at, so a replayed save cannot change it.
func (r *PGRepository) Save(ctx context.Context, snap workflow.Snapshot, expectedVersion int) (workflow.Snapshot, error) {
	const query = `
		UPDATE video_consultations
		SET status = $2,
		    started_at = COALESCE(started_at, $3),
		    ended_at = COALESCE(ended_at, $4),
		    duration_minutes = COALESCE(duration_minutes,
		        CASE WHEN $4::timestamptz IS NOT NULL AND started_at IS NOT NULL
		             THEN CAST(EXTRACT(EPOCH FROM ($4::timestamptz - started_at)) / 60 AS INT)
		        END),
		    consultation_notes = COALESCE($5, consultation_notes),
		    cancel_reason = COALESCE($6, cancel_reason),
		    technical_issue = COALESCE($7, technical_issue),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $8
		RETURNING version
	`
	var version int
	err := r.pool.QueryRow(ctx, query,
		snap.ID,
		snap.Status,
		milestone(snap, "started_at"),
		milestone(snap, "ended_at"),
		fieldString(snap, "consultation_notes"),
		fieldString(snap, "cancel_reason"),
		fieldString(snap, "technical_issue"),
		expectedVersion,
	).Scan(&version)
	if err == nil {
		snap.Version = version
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return workflow.Snapshot{}, workflow.StorageError("telemedicine: save snapshot", err)
	}

	// Zero rows: either the id is gone or another writer won the version race.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM video_consultations WHERE id = $1)`, snap.ID).Scan(&exists); err != nil {
		return workflow.Snapshot{}, workflow.StorageError("telemedicine: verify snapshot", err)
	}
	if !exists {
		return workflow.Snapshot{}, workflow.ErrNotFound
	}
	return workflow.Snapshot{}, workflow.ErrConflict
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

func scanConsultation(row pgx.Row) (Consultation, error) {
	var cons Consultation
	return cons, row.Scan(
		&cons.ID,
		&cons.PatientID,
		&cons.DoctorID,
		&cons.ScheduledTime,
		&cons.RoomID,
		&cons.Status,
		&cons.ConsultationNotes,
		&cons.CancelReason,
		&cons.TechnicalIssue,
		&cons.StartedAt,
		&cons.EndedAt,
		&cons.DurationMinutes,
		&cons.Version,
		&cons.CreatedAt,
		&cons.UpdatedAt,
	)
}
