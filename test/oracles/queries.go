package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_expertise_status_enum",
			SQL: `SELECT id, status FROM expertise_requests
                  WHERE status NOT IN ('PENDING','ASSIGNED','IN_REVIEW','COMPLETED','CANCELLED','EXPIRED')`,
		},
		{
			Name: "O2_completed_without_milestones",
			SQL: `SELECT id FROM expertise_requests
                  WHERE status = 'COMPLETED' AND (responded_at IS NULL OR assigned_at IS NULL)`,
		},
		{
			Name: "O3_version_monotonic_floor",
			SQL: `SELECT 'expertise' AS src, id FROM expertise_requests WHERE version < 1
                  UNION ALL
                  SELECT 'intake', id FROM medication_intakes WHERE version < 1
                  UNION ALL
                  SELECT 'reminder', id FROM reminders WHERE version < 1`,
		},
		{
			Name: "O4_taken_without_actual_time",
			SQL:  `SELECT id FROM medication_intakes WHERE status = 'TAKEN' AND actual_time IS NULL`,
		},
		{
			Name: "O5_intake_status_enum",
			SQL: `SELECT id, status FROM medication_intakes
                  WHERE status NOT IN ('SCHEDULED','TAKEN','MISSED','DELAYED','SKIPPED')`,
		},
		{
			Name: "O6_assignment_consistency",
			SQL: `SELECT id FROM expertise_requests
                  WHERE status IN ('ASSIGNED','IN_REVIEW','COMPLETED')
                    AND (expert_doctor_id IS NULL OR assigned_at IS NULL)`,
		},
		{
			Name: "O7_session_time_order",
			SQL: `SELECT id FROM video_consultations
                  WHERE started_at IS NOT NULL AND ended_at IS NOT NULL AND ended_at < started_at
                  UNION ALL
                  SELECT id FROM rcp_meetings
                  WHERE actual_start_time IS NOT NULL AND actual_end_time IS NOT NULL
                    AND actual_end_time < actual_start_time`,
		},
		{
			Name: "O8_negative_duration",
			SQL: `SELECT id FROM video_consultations WHERE duration_minutes < 0
                  UNION ALL
                  SELECT id FROM rcp_meetings WHERE duration_minutes < 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
