package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sankofa-mutual/sankofa/internal/jobs"
)

// Mailer sends plain-text mail over SMTP. Local development points it at
// Mailpit; nothing here needs authentication.
type Mailer struct {
	Host string
	Port int
	From string
}

// Send delivers one message.
func (m *Mailer) Send(to, subject, body string) error {
	if m == nil || m.Host == "" {
		return errors.New("mailer: not configured")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body)
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	return smtp.SendMail(addr, nil, m.From, []string{to}, []byte(msg))
}

// MailJob handles the generic send-email task and the settlement receipt task.
type MailJob struct {
	Mailer  *Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob initialises the mail handler.
func NewMailJob(mailer *Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// HandleSend processes TaskTypeSendEmail tasks.
func (j *MailJob) HandleSend(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	err := j.Mailer.Send(payload.To, payload.Subject, payload.Body)
	if err != nil {
		j.Logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
	}
	return tracker.End(err)
}

// HandleReceipt processes TaskTypeReceiptEmail tasks.
func (j *MailJob) HandleReceipt(ctx context.Context, t *asynq.Task) error {
	var payload ReceiptEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskTypeReceiptEmail)

	subject := fmt.Sprintf("Reçu de règlement - %s", payload.OwnerLabel)
	body := fmt.Sprintf(
		"Bonjour %s,\n\nVotre règlement du %s a été enregistré.\n\nLignes réglées: %d\nMontant total: %.0f\nRésultat: %s\n\nSankofa",
		payload.OwnerLabel,
		payload.PaidAt.Format("2006-01-02"),
		payload.Lines,
		payload.Total,
		payload.Outcome,
	)
	err := j.Mailer.Send(payload.To, subject, body)
	if err != nil {
		j.Logger.Error("send receipt", slog.String("to", payload.To), slog.Any("error", err))
	}
	return tracker.End(err)
}
