package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/sankofa-mutual/sankofa/internal/jobs"
)

// MailEnqueuer queues outgoing reminder emails. Satisfied by *Client.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// DuesReminderScanJob looks for dues coming up within the horizon and enqueues
// one reminder email per owner with a contact address.
type DuesReminderScanJob struct {
	Pool    *pgxpool.Pool
	Client  MailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDuesReminderScanJob initialises the scan handler.
func NewDuesReminderScanJob(pool *pgxpool.Pool, client MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DuesReminderScanJob {
	return &DuesReminderScanJob{Pool: pool, Client: client, Logger: logger, Metrics: metrics}
}

type reminderRow struct {
	Email     string
	Label     string
	DueCount  int
	Remaining float64
}

// Handle executes the scan for both owner kinds.
func (j *DuesReminderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("dues reminder scan: handler not configured")
	}
	var payload DuesReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.HorizonDays <= 0 {
		payload.HorizonDays = 14
	}

	tracker := j.Metrics.Track(TaskTypeDuesReminderScan)
	var resultErr error
	defer func() { _ = tracker.End(resultErr) }()

	horizon := time.Now().AddDate(0, 0, payload.HorizonDays)

	memberRows, err := j.scan(ctx, `
		SELECT m.email, m.full_name, COUNT(d.id), COALESCE(SUM(d.amount_due - d.amount_paid), 0)
		FROM member_dues d
		JOIN members m ON m.id = d.member_id
		WHERE d.amount_paid < d.amount_due AND d.due_date <= $1 AND m.email <> ''
		GROUP BY m.email, m.full_name`, horizon)
	if err != nil {
		resultErr = err
		return err
	}
	j.enqueue(ctx, "member", memberRows)

	lineageRows, err := j.scan(ctx, `
		SELECT l.contact_email, l.name, COUNT(d.id), COALESCE(SUM(d.amount_due - d.amount_paid), 0)
		FROM lineage_dues d
		JOIN lineages l ON l.id = d.lineage_id
		WHERE d.amount_paid < d.amount_due AND d.due_date <= $1 AND l.contact_email <> ''
		GROUP BY l.contact_email, l.name`, horizon)
	if err != nil {
		resultErr = err
		return err
	}
	j.enqueue(ctx, "lineage", lineageRows)

	return nil
}

func (j *DuesReminderScanJob) scan(ctx context.Context, query string, horizon time.Time) ([]reminderRow, error) {
	rows, err := j.Pool.Query(ctx, query, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminderRow
	for rows.Next() {
		var r reminderRow
		if err := rows.Scan(&r.Email, &r.Label, &r.DueCount, &r.Remaining); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *DuesReminderScanJob) enqueue(ctx context.Context, kind string, rows []reminderRow) {
	sent := 0
	for _, r := range rows {
		body := fmt.Sprintf(
			"Bonjour %s,\n\nVous avez %d cotisation(s) à régler pour un total de %.0f.\n\nSankofa",
			r.Label, r.DueCount, r.Remaining)
		_, err := j.Client.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      r.Email,
			Subject: "Rappel de cotisations - Sankofa",
			Body:    body,
		})
		if err != nil {
			j.Logger.Warn("enqueue dues reminder",
				slog.String("kind", kind), slog.String("to", r.Email), slog.Any("error", err))
			continue
		}
		sent++
	}
	// Counts enqueued reminders only; failed enqueues are logged above.
	j.Metrics.AddReminders(kind, sent)
}
