package teleexpertise

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"careflow/workflow"
)

// TestRequestLifecycle_Integration connects to a real PostgreSQL via
// DATABASE_URL and verifies the end-to-end repository + service behavior
// including the version conflict path.
func TestRequestLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "expertise_requests") {
		t.Skip("database schema missing; apply migrations/0001_init.sql first")
	}

	repo := NewRepository(pool)
	svc := NewService(repo, zerolog.Nop())

	patientID := fmt.Sprintf("patient-%d", time.Now().UnixNano())
	created, err := svc.Create(ctx, CreateParams{
		PatientID:          patientID,
		RequestingDoctorID: "doctor-itest",
		Specialty:          "cardiology",
		ClinicalQuestion:   "persistent arrhythmia after ablation",
		Urgency:            workflow.UrgencyUrgent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM expertise_requests WHERE id = $1`, created.ID)
	})

	if created.Status != workflow.StatusPending || created.Version != 1 {
		t.Fatalf("created state = %s v%d, want PENDING v1", created.Status, created.Version)
	}
	// created_at is stamped by the database, the deadline by the service
	// clock; allow a small skew between the two.
	if gap := created.Deadline.Sub(created.CreatedAt); gap < 2*time.Hour-time.Minute || gap > 2*time.Hour+time.Minute {
		t.Fatalf("deadline gap = %v, want ~2h after created_at", gap)
	}

	assigned, err := svc.Assign(ctx, created.ID, "expert-itest")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != workflow.StatusAssigned || assigned.Version != 2 {
		t.Fatalf("assigned state = %s v%d, want ASSIGNED v2", assigned.Status, assigned.Version)
	}
	if assigned.AssignedAt == nil {
		t.Fatal("assigned_at not stamped")
	}

	// Save from a stale version must surface as a conflict, not a lost update.
	stale := workflow.Snapshot{
		Kind:   workflow.KindExpertiseRequest,
		ID:     created.ID,
		Status: workflow.StatusInReview,
	}
	if _, err := repo.Save(ctx, stale, 1); !errors.Is(err, workflow.ErrConflict) {
		t.Fatalf("stale save: err = %v, want ErrConflict", err)
	}

	if _, err := svc.StartReview(ctx, created.ID); err != nil {
		t.Fatalf("start review: %v", err)
	}
	done, err := svc.Complete(ctx, created.ID, "no further ablation needed", "holter follow-up in 1 month")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != workflow.StatusCompleted || done.RespondedAt == nil {
		t.Fatalf("completed state = %s respondedAt=%v", done.Status, done.RespondedAt)
	}

	// Terminal: any further transitions are rejected.
	if _, err := svc.Cancel(ctx, created.ID, "late"); !errors.Is(err, workflow.ErrIllegalTransition) {
		t.Fatalf("cancel after completion: err = %v, want ErrIllegalTransition", err)
	}

	// Finished requests never show up in the overdue scan.
	overdue, err := svc.FindOverdue(ctx, done.Deadline.Add(time.Hour))
	if err != nil {
		t.Fatalf("find overdue: %v", err)
	}
	for _, id := range overdue {
		if id == created.ID {
			t.Fatalf("completed request reported overdue")
		}
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
