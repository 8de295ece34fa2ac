package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeReceiptEmail is the task type for post-batch receipt emails.
	TaskTypeReceiptEmail = "mail:receipt"
	// TaskTypeDuesReminderScan triggers the nightly upcoming-dues scan.
	TaskTypeDuesReminderScan = "dues:reminder_scan"
	// TaskTypeGuardCleanup reaps expired settlement guard keys.
	TaskTypeGuardCleanup = "settlement:guard_cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault)), nil
}

// ReceiptEmailPayload carries everything a settlement receipt needs.
type ReceiptEmailPayload struct {
	To         string    `json:"to"`
	OwnerLabel string    `json:"owner_label"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	Total      float64   `json:"total"`
	Lines      int       `json:"lines"`
	PaidAt     time.Time `json:"paid_at"`
}

// NewReceiptEmailTask constructs an Asynq task for a settlement receipt.
func NewReceiptEmailTask(payload ReceiptEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReceiptEmail, data, asynq.Queue(QueueDefault)), nil
}

// DuesReminderPayload bounds how far ahead the scan looks.
type DuesReminderPayload struct {
	HorizonDays int `json:"horizon_days"`
}

// NewDuesReminderScanTask constructs the nightly scan task.
func NewDuesReminderScanTask(horizonDays int) (*asynq.Task, error) {
	data, err := json.Marshal(DuesReminderPayload{HorizonDays: horizonDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDuesReminderScan, data, asynq.Queue(QueueDefault)), nil
}

// GuardCleanupPayload carries the retention window.
type GuardCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewGuardCleanupTask constructs the guard key cleanup task.
func NewGuardCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(GuardCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGuardCleanup, data, asynq.Queue(QueueDefault)), nil
}
