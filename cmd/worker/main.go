package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sankofa-mutual/sankofa/internal/app"
	jobmetrics "github.com/sankofa-mutual/sankofa/internal/jobs"
	"github.com/sankofa-mutual/sankofa/internal/platform/db"
	"github.com/sankofa-mutual/sankofa/internal/shared"
	"github.com/sankofa-mutual/sankofa/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	mailJob := jobs.NewMailJob(&jobs.Mailer{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		From: cfg.SMTPFrom,
	}, logger, metrics)
	reminderJob := jobs.NewDuesReminderScanJob(pool, jobClient, logger, metrics)
	cleanupJob := jobs.NewGuardCleanupJob(shared.NewSettlementGuard(pool), logger, metrics)

	reminderTask, err := jobs.NewDuesReminderScanTask(14)
	if err != nil {
		logger.Error("build reminder task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewGuardCleanupTask(cfg.GuardRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.HandleSend},
			{Type: jobs.TaskTypeReceiptEmail, Handler: mailJob.HandleReceipt},
			{Type: jobs.TaskTypeDuesReminderScan, Handler: reminderJob.Handle},
			{Type: jobs.TaskTypeGuardCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
