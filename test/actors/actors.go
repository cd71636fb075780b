package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Assigner races to move the shared PENDING expertise request to ASSIGNED.
// Every write is version checked, so at most one racer per version wins; the
// rest update zero rows, which is the expected conflict outcome.
func Assigner(ctx context.Context, pool *pgxpool.Pool, requestID, expertID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var version int
		err := pool.QueryRow(ctx, `SELECT version FROM expertise_requests WHERE id=$1 AND status='PENDING'`, requestID).Scan(&version)
		if err == nil {
			_, err = pool.Exec(ctx, `
				UPDATE expertise_requests
				SET status='ASSIGNED',
				    expert_doctor_id=$2,
				    assigned_at=COALESCE(assigned_at, NOW()),
				    version=version+1,
				    updated_at=NOW()
				WHERE id=$1 AND version=$3 AND status='PENDING'`, requestID, expertID, version)
			if err != nil {
				return fmt.Errorf("assigner update: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Reviewer advances an assigned request through IN_REVIEW to COMPLETED,
// stamping responded_at exactly once.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, requestID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var status string
		var version int
		err := pool.QueryRow(ctx, `SELECT status, version FROM expertise_requests WHERE id=$1`, requestID).Scan(&status, &version)
		if err == nil {
			switch status {
			case "ASSIGNED":
				_, _ = pool.Exec(ctx, `
					UPDATE expertise_requests
					SET status='IN_REVIEW', version=version+1, updated_at=NOW()
					WHERE id=$1 AND version=$2 AND status='ASSIGNED'`, requestID, version)
			case "IN_REVIEW":
				_, _ = pool.Exec(ctx, `
					UPDATE expertise_requests
					SET status='COMPLETED',
					    expert_response='reviewed',
					    responded_at=COALESCE(responded_at, NOW()),
					    version=version+1,
					    updated_at=NOW()
					WHERE id=$1 AND version=$2 AND status='IN_REVIEW'`, requestID, version)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// IntakeMarker resolves SCHEDULED doses to TAKEN or MISSED under contention.
func IntakeMarker(ctx context.Context, pool *pgxpool.Pool, patientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id string
		var version int
		err := pool.QueryRow(ctx, `
			SELECT id, version FROM medication_intakes
			WHERE patient_id=$1 AND status='SCHEDULED'
			ORDER BY scheduled_time LIMIT 1`, patientID).Scan(&id, &version)
		if err == nil {
			if rand.Intn(4) == 0 {
				_, _ = pool.Exec(ctx, `
					UPDATE medication_intakes
					SET status='MISSED', version=version+1, updated_at=NOW()
					WHERE id=$1 AND version=$2 AND status='SCHEDULED'`, id, version)
			} else {
				_, _ = pool.Exec(ctx, `
					UPDATE medication_intakes
					SET status='TAKEN',
					    actual_time=COALESCE(actual_time, NOW()),
					    version=version+1,
					    updated_at=NOW()
					WHERE id=$1 AND version=$2 AND status='SCHEDULED'`, id, version)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// IntakeScheduler keeps feeding new doses so the markers never run dry.
func IntakeScheduler(ctx context.Context, pool *pgxpool.Pool, patientID, itemID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO medication_intakes (id, patient_id, prescription_item_id, scheduled_time, status)
			VALUES ($1, $2, $3, NOW(), 'SCHEDULED')`,
			fmt.Sprintf("dose-%d", rand.Int63()), patientID, itemID)
		if err != nil {
			return fmt.Errorf("intake scheduler insert: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// OverdueSweeper runs the read-only deadline scans concurrently with the
// writers. It must never change a row.
func OverdueSweeper(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	queries := []string{
		`SELECT id FROM expertise_requests WHERE status='PENDING' AND deadline <= NOW()`,
		`SELECT id FROM medication_intakes WHERE status='SCHEDULED' AND scheduled_time <= NOW()`,
		`SELECT id FROM reminders WHERE status='PENDING' AND reminder_time < NOW() - interval '15 minutes'`,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		for _, q := range queries {
			rows, err := pool.Query(ctx, q)
			if err != nil {
				return fmt.Errorf("sweeper query: %w", err)
			}
			for rows.Next() {
			}
			rows.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
}
