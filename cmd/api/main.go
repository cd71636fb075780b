package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"careflow/config"
	"careflow/db"
	"careflow/observance"
	"careflow/rcp"
	"careflow/scanner"
	"careflow/teleexpertise"
	"careflow/telemedicine"
	"careflow/workflow"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap database pool")
	}
	defer pool.Close()

	expertiseRepo := teleexpertise.NewRepository(pool)
	expertiseSvc := teleexpertise.NewService(expertiseRepo, log)

	intakeRepo := observance.NewIntakeRepository(pool)
	reminderRepo := observance.NewReminderRepository(pool)
	observanceSvc := observance.NewService(intakeRepo, reminderRepo, log)

	consultationRepo := telemedicine.NewRepository(pool)
	consultationSvc := telemedicine.NewService(consultationRepo, log)

	meetingRepo := rcp.NewRepository(pool)
	meetingSvc := rcp.NewService(meetingRepo, log)

	sweeper := scanner.New(log)
	sweeper.Register(workflow.KindExpertiseRequest, expertiseSvc.FindOverdue)
	sweeper.Register(workflow.KindMedicationIntake, observanceSvc.FindOverdueIntakes)
	sweeper.Register(workflow.KindReminder, func(ctx context.Context, now time.Time) ([]string, error) {
		return observanceSvc.FindOverdueReminders(ctx, now, cfg.ReminderGrace)
	})
	sweeper.Register(workflow.KindVideoConsultation, consultationSvc.FindOverdue)
	sweeper.Register(workflow.KindRCPMeeting, meetingSvc.FindOverdue)

	if err := sweeper.Start(cfg.ScanSchedule); err != nil {
		log.Fatal().Err(err).Msg("start overdue scanner")
	}
	defer sweeper.Stop()

	log.Info().Msg("careflow engine ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
}
