package rcp

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

	Create(ctx context.Context, meeting Meeting, participants []Participant) (Meeting, error)
	GetByID(ctx context.Context, id string) (Meeting, error)
	List(ctx context.Context, filters Filters) ([]Meeting, int, error)
	FindOverdue(ctx context.Context, now time.Time) ([]string, error)
	Participants(ctx context.Context, meetingID string) ([]Participant, error)
	AddParticipant(ctx context.Context, p Participant) error
	RecordAttendance(ctx context.Context, meetingID, doctorID string, attended bool) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const meetingColumns = `id, title, description, patient_id, organizer_id, meeting_type,
	scheduled_time, location, meeting_link, status, decision_summary, recommendations, next_steps,
	cancel_reason, postpone_reason, actual_start_time, actual_end_time, duration_minutes,
	version, created_at, updated_at`

// Create inserts the meeting and its invitation list in one transaction.
func (r *PGRepository) Create(ctx context.Context, meeting Meeting, participants []Participant) (Meeting, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Meeting{}, workflow.StorageError("rcp: begin create", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO rcp_meetings (id, title, description, patient_id, organizer_id, meeting_type,
			scheduled_time, location, meeting_link, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s`, meetingColumns)

	row := tx.QueryRow(ctx, query,
		meeting.ID,
		meeting.Title,
		meeting.Description,
		meeting.PatientID,
		meeting.OrganizerID,
		meeting.MeetingType,
		meeting.ScheduledTime,
		meeting.Location,
		meeting.MeetingLink,
		meeting.Status,
	)
	created, err := scanMeeting(row)
	if err != nil {
		return Meeting{}, workflow.StorageError("rcp: create", err)
	}

	for _, p := range participants {
		_, err := tx.Exec(ctx, `
			INSERT INTO rcp_participants (meeting_id, doctor_id, role, attended)
			VALUES ($1, $2, $3, false)`,
			created.ID, p.DoctorID, p.Role)
		if err != nil {
			return Meeting{}, workflow.StorageError("rcp: add participant", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Meeting{}, workflow.StorageError("rcp: commit create", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Meeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM rcp_meetings WHERE id = $1`, meetingColumns)
	meeting, err := scanMeeting(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Meeting{}, workflow.ErrNotFound
		}
		return Meeting{}, workflow.StorageError("rcp: get", err)
	}
	return meeting, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Meeting, int, error) {
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
	if filters.OrganizerID != "" {
		where = append(where, fmt.Sprintf("organizer_id=$%d", len(args)+1))
		args = append(args, filters.OrganizerID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM rcp_meetings%s ORDER BY scheduled_time DESC LIMIT %d OFFSET %d`,
		meetingColumns, whereClause, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, workflow.StorageError("rcp: list", err)
	}
	defer rows.Close()

	list := []Meeting{}
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("rcp: scan meeting: %w", err)
		}
		list = append(list, meeting)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, workflow.StorageError("rcp: iterate", err)
	}

	countQuery := "SELECT COUNT(*) FROM rcp_meetings" + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, workflow.StorageError("rcp: count", err)
	}

	return list, total, nil
}

// FindOverdue returns ids of meetings still SCHEDULED past their slot.
func (r *PGRepository) FindOverdue(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT id FROM rcp_meetings
		WHERE status = $1 AND scheduled_time <= $2
		ORDER BY scheduled_time
	`
	rows, err := r.pool.Query(ctx, query, workflow.StatusScheduled, now)
	if err != nil {
		return nil, workflow.StorageError("rcp: find overdue", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rcp: scan overdue id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("rcp: iterate overdue", err)
	}
	return ids, nil
}

func (r *PGRepository) Participants(ctx context.Context, meetingID string) ([]Participant, error) {
	const query = `
		SELECT meeting_id, doctor_id, role, attended
		FROM rcp_participants WHERE meeting_id = $1
		ORDER BY doctor_id
	`
	rows, err := r.pool.Query(ctx, query, meetingID)
	if err != nil {
		return nil, workflow.StorageError("rcp: participants", err)
	}
	defer rows.Close()

	list := []Participant{}
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.MeetingID, &p.DoctorID, &p.Role, &p.Attended); err != nil {
			return nil, fmt.Errorf("rcp: scan participant: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.StorageError("rcp: iterate participants", err)
	}
	return list, nil
}

func (r *PGRepository) AddParticipant(ctx context.Context, p Participant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rcp_participants (meeting_id, doctor_id, role, attended)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (meeting_id, doctor_id) DO UPDATE SET role = EXCLUDED.role`,
		p.MeetingID, p.DoctorID, p.Role)
	if err != nil {
		return workflow.StorageError("rcp: add participant", err)
	}
	return nil
}

func (r *PGRepository) RecordAttendance(ctx context.Context, meetingID, doctorID string, attended bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rcp_participants SET attended = $3
		WHERE meeting_id = $1 AND doctor_id = $2`,
		meetingID, doctorID, attended)
	if err != nil {
		return workflow.StorageError("rcp: record attendance", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

// Load implements workflow.Store.
func (r *PGRepository) Load(ctx context.Context, kind workflow.Kind, id string) (workflow.Snapshot, error) {
	const query = `
		SELECT status, version, actual_start_time, actual_end_time
		FROM rcp_meetings WHERE id = $1
	`
	var (
		status  workflow.Status
		version int
		startAt *time.Time
		endAt   *time.Time
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&status, &version, &startAt, &endAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.Snapshot{}, workflow.ErrNotFound
		}
		return workflow.Snapshot{}, workflow.StorageError("rcp: load snapshot", err)
	}

	snap := workflow.Snapshot{
		Kind:       workflow.KindRCPMeeting,
		ID:         id,
		Status:     status,
		Version:    version,
		Milestones: map[string]time.Time{},
		Fields:     map[string]any{},
	}
	if startAt != nil {
		snap.Milestones["actual_start_time"] = *startAt
	}
	if endAt != nil {
		snap.Milestones["actual_end_time"] = *endAt
	}
	return snap, nil
}

// Save implements workflow.Store. Rescheduling a postponed meeting carries a
// new scheduled_time in the payload; session timestamps stay set-once.
func (r *PGRepository) Save(ctx context.Context, snap workflow.Snapshot, expectedVersion int) (workflow.Snapshot, error) {
	const query = `
		UPDATE rcp_meetings
		SET status = $2,
		    actual_start_time = COALESCE(actual_start_time, $3),
		    actual_end_time = COALESCE(actual_end_time, $4),
		    duration_minutes = COALESCE(duration_minutes,
		        CASE WHEN $4::timestamptz IS NOT NULL AND actual_start_time IS NOT NULL
		             THEN CAST(EXTRACT(EPOCH FROM ($4::timestamptz - actual_start_time)) / 60 AS INT)
		        END),
		    decision_summary = COALESCE($5, decision_summary),
		    recommendations = COALESCE($6, recommendations),
		    next_steps = COALESCE($7, next_steps),
		    cancel_reason = COALESCE($8, cancel_reason),
		    postpone_reason = COALESCE($9, postpone_reason),
		    scheduled_time = COALESCE($10, scheduled_time),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $11
		RETURNING version
	`
	var version int
	err := r.pool.QueryRow(ctx, query,
		snap.ID,
		snap.Status,
		milestone(snap, "actual_start_time"),
		milestone(snap, "actual_end_time"),
		fieldString(snap, "decision_summary"),
		fieldString(snap, "recommendations"),
		fieldString(snap, "next_steps"),
		fieldString(snap, "cancel_reason"),
		fieldString(snap, "postpone_reason"),
		fieldTime(snap, "scheduled_time"),
		expectedVersion,
	).Scan(&version)
	if err == nil {
		snap.Version = version
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return workflow.Snapshot{}, workflow.StorageError("rcp: save snapshot", err)
	}

	// Zero rows: either the id is gone or another writer won the version race.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rcp_meetings WHERE id = $1)`, snap.ID).Scan(&exists); err != nil {
		return workflow.Snapshot{}, workflow.StorageError("rcp: verify snapshot", err)
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

func fieldTime(snap workflow.Snapshot, key string) *time.Time {
	if v, ok := snap.Fields[key].(time.Time); ok && !v.IsZero() {
		return &v
	}
	return nil
}

func scanMeeting(row pgx.Row) (Meeting, error) {
	var m Meeting
	return m, row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&m.PatientID,
		&m.OrganizerID,
		&m.MeetingType,
		&m.ScheduledTime,
		&m.Location,
		&m.MeetingLink,
		&m.Status,
		&m.DecisionSummary,
		&m.Recommendations,
		&m.NextSteps,
		&m.CancelReason,
		&m.PostponeReason,
		&m.ActualStartTime,
		&m.ActualEndTime,
		&m.DurationMinutes,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
}
