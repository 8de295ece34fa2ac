package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sankofa-mutual/sankofa/internal/app"
	"github.com/sankofa-mutual/sankofa/internal/lineages"
	"github.com/sankofa-mutual/sankofa/internal/members"
	"github.com/sankofa-mutual/sankofa/internal/observability"
	"github.com/sankofa-mutual/sankofa/internal/platform/cache"
	"github.com/sankofa-mutual/sankofa/internal/platform/db"
	"github.com/sankofa-mutual/sankofa/internal/settlement"
	"github.com/sankofa-mutual/sankofa/internal/shared"
	"github.com/sankofa-mutual/sankofa/internal/wizard"
	"github.com/sankofa-mutual/sankofa/jobs"
)

// receiptNotifier looks up the owner's contact address and enqueues a receipt
// email. Missing addresses are skipped silently; notification is best effort.
type receiptNotifier struct {
	pool   *pgxpool.Pool
	client *jobs.Client
	logger *slog.Logger
}

func (n *receiptNotifier) BatchSettled(ctx context.Context, st *wizard.State, result settlement.BatchResult, paidAt time.Time) {
	var query string
	switch st.Kind {
	case wizard.KindMember:
		query = `SELECT email FROM members WHERE id = $1`
	case wizard.KindLineage:
		query = `SELECT contact_email FROM lineages WHERE id = $1`
	default:
		return
	}

	var email string
	if err := n.pool.QueryRow(ctx, query, st.Owner.ID).Scan(&email); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			n.logger.Warn("lookup receipt address", slog.Any("error", err))
		}
		return
	}
	if email == "" {
		return
	}

	_, err := n.client.EnqueueReceiptEmail(ctx, jobs.ReceiptEmailPayload{
		To:         email,
		OwnerLabel: st.Owner.Label,
		Kind:       string(st.Kind),
		Outcome:    string(result.Outcome),
		Total:      result.TotalSettled(),
		Lines:      len(result.Records),
		PaidAt:     paidAt,
	})
	if err != nil {
		n.logger.Warn("enqueue receipt email",
			slog.String("wizard_id", st.ID), slog.Any("error", err))
	}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	guard := shared.NewSettlementGuard(dbpool)
	snapshots := cache.NewSnapshots(redisClient, cfg.SnapshotTTL)

	controller := settlement.NewController(settlement.Config{
		OverpayTolerance: cfg.OverpayTolerance,
	}, logger, guard)

	memberRepo := members.NewRepository(dbpool)
	memberProvider := members.NewProvider(memberRepo, snapshots, logger)

	lineageRepo := lineages.NewRepository(dbpool)
	lineageProvider := lineages.NewProvider(lineageRepo, snapshots, logger)

	store := wizard.NewStore(redisClient, cfg.WizardTTL)
	metrics := observability.NewMetrics()

	wizardHandler := wizard.NewHandler(logger, store, metrics, auditLogger,
		wizard.NewEngine(memberProvider, controller, logger),
		wizard.NewEngine(lineageProvider, controller, logger),
	)

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
	wizardHandler.SetNotifier(&receiptNotifier{pool: dbpool, client: jobClient, logger: logger})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		WizardHandler: wizardHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
