package teleexpertise

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

	Create(ctx context.Context, req Request) (Request, error)
	GetByID(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, filters Filters) ([]Request, int, error)
	FindOverdue(ctx context.Context, now time.Time) ([]string, error)
	CountCompletedByRequestingDoctor(ctx context.Context, doctorID string) (int64, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, patient_id, requesting_doctor_id, expert_doctor_id, specialty,
	clinical_question, patient_history, current_treatment, examination_findings, diagnostic_results,
	urgency, status, expert_response, expert_recommendations, cancel_reason,
	assigned_at, responded_at, deadline, version, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, req Request) (Request, error) {
	query := fmt.Sprintf(`
		INSERT INTO expertise_requests (id, patient_id, requesting_doctor_id, specialty,
			clinical_question, patient_history, current_treatment, examination_findings,
			diagnostic_results, urgency, status, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING %s`, requestColumns)

	row := r.pool.QueryRow(ctx, query,
		req.ID,
		req.PatientID,
		req.RequestingDoctorID,
		req.Specialty,
		req.ClinicalQuestion,
		req.PatientHistory,
		req.CurrentTreatment,
		req.ExaminationFindings,
		req.DiagnosticResults,
		req.Urgency,
		req.Status,
		req.Deadline,
	)
	created, err := scanRequest(row)
	if err != nil {
		return Request{}, workflow.StorageError("teleexpertise: create", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM expertise_requests WHERE id = $1`, requestColumns)
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, workflow.ErrNotFound
		}
		return Request{}, workflow.StorageError("teleexpertise: get", err)
	}
	return req, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Request, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}
	if filters.RequestingDoctorID != "" {
		where = append(where, fmt.Sprintf("requesting_doctor_id=$%d", len(args)+1))
		args = append(args, filters.RequestingDoctorID)
	}
	if filters.ExpertDoctorID != "" {
		where = append(where, fmt.Sprintf("expert_doctor_id=$%d", len(args)+1))
		args = append(args, filters.ExpertDoctorID)
	}
	if filters.Specialty != "" {
		where = append(where, fmt.Sprintf("specialty=$%d", len(args)+1))
		args = append(args, filters.Specialty)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM expertise_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		requestColumns, whereClause, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, workflow.StorageError("teleexpertise: list", err)
	}
	defer rows.Close()

	list := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("teleexpertise: scan request: %w", err)
		}
		list = append(list, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, workflow.StorageError("teleexpertise: iterate", err)
	}

	countQuery := "SELECT COUNT(*) FROM expertise_requests" + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, workflow.StorageError("teleexpertise: count", err)
	}

	return list, total, nil
}

// FindOverdue returns ids of requests still PENDING whose deadline has
// passed. Read-only; expiring them is a separate gateway transition.
func (r *PGRepository) FindOverdue(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT id FROM expertise_requests
		WHERE status = $1 AND deadline <= $2
		ORDER BY deadline
	`
	rows, err := r.pool.Query(ctx, query, workflow.StatusPending, now)
	if err != nil {
		return nil, workflow.StorageError("teleexpertise: find overdue", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("teleexpertise: scan overdue id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("teleexpertise: iterate overdue", err)
	}
	return ids, nil
}

func (r *PGRepository) CountCompletedByRequestingDoctor(ctx context.Context, doctorID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM expertise_requests WHERE requesting_doctor_id = $1 AND status = $2`
	var count int64
	if err := r.pool.QueryRow(ctx, query, doctorID, workflow.StatusCompleted).Scan(&count); err != nil {
		return 0, workflow.StorageError("teleexpertise: count completed", err)
	}
	return count, nil
}

// Load implements workflow.Store.
func (r *PGRepository) Load(ctx context.Context, kind workflow.Kind, id string) (workflow.Snapshot, error) {
	const query = `
		SELECT status, version, deadline, assigned_at, responded_at
		FROM expertise_requests WHERE id = $1
	`
	var (
		status      workflow.Status
		version     int
		deadline    time.Time
		assignedAt  *time.Time
		respondedAt *time.Time
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&status, &version, &deadline, &assignedAt, &respondedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.Snapshot{}, workflow.ErrNotFound
		}
		return workflow.Snapshot{}, workflow.StorageError("teleexpertise: load snapshot", err)
	}

	snap := workflow.Snapshot{
		Kind:       workflow.KindExpertiseRequest,
		ID:         id,
		Status:     status,
		Version:    version,
		Deadline:   &deadline,
		Milestones: map[string]time.Time{},
		Fields:     map[string]any{},
	}
	if assignedAt != nil {
		snap.Milestones["assigned_at"] = *assignedAt
	}
	if respondedAt != nil {
		snap.Milestones["responded_at"] = *respondedAt
	}
	return snap, nil
}

// Save implements workflow.Store. The version check serializes concurrent
// transitions: a stale expectedVersion updates zero rows and surfaces as
// workflow.ErrConflict.
func (r *PGRepository) Save(ctx context.Context, snap workflow.Snapshot, expectedVersion int) (workflow.Snapshot, error) {
	const query = `
		UPDATE expertise_requests
		SET status = $2,
		    assigned_at = COALESCE(assigned_at, $3),
		    responded_at = COALESCE(responded_at, $4),
		    expert_doctor_id = COALESCE($5, expert_doctor_id),
		    expert_response = COALESCE($6, expert_response),
		    expert_recommendations = COALESCE($7, expert_recommendations),
		    cancel_reason = COALESCE($8, cancel_reason),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $9
		RETURNING version
	`
	var version int
	err := r.pool.QueryRow(ctx, query,
		snap.ID,
		snap.Status,
		milestone(snap, "assigned_at"),
		milestone(snap, "responded_at"),
		fieldString(snap, "expert_doctor_id"),
		fieldString(snap, "expert_response"),
		fieldString(snap, "expert_recommendations"),
		fieldString(snap, "cancel_reason"),
		expectedVersion,
	).Scan(&version)
	if err == nil {
		snap.Version = version
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return workflow.Snapshot{}, workflow.StorageError("teleexpertise: save snapshot", err)
	}

	// Zero rows: either the id is gone or another writer won the version race.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM expertise_requests WHERE id = $1)`, snap.ID).Scan(&exists); err != nil {
		return workflow.Snapshot{}, workflow.StorageError("teleexpertise: verify snapshot", err)
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

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	return req, row.Scan(
		&req.ID,
		&req.PatientID,
		&req.RequestingDoctorID,
		&req.ExpertDoctorID,
		&req.Specialty,
		&req.ClinicalQuestion,
		&req.PatientHistory,
		&req.CurrentTreatment,
		&req.ExaminationFindings,
		&req.DiagnosticResults,
		&req.Urgency,
		&req.Status,
		&req.ExpertResponse,
		&req.ExpertRecommendations,
		&req.CancelReason,
		&req.AssignedAt,
		&req.RespondedAt,
		&req.Deadline,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
}
