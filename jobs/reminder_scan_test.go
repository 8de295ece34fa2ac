package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/sankofa-mutual/sankofa/internal/jobs"
)

type stubEnqueuer struct {
	failOn map[string]error
	sent   []SendEmailPayload
}

func (s *stubEnqueuer) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	if err, ok := s.failOn[payload.To]; ok {
		return nil, err
	}
	s.sent = append(s.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func reminderCounter(t *testing.T, reg *prometheus.Registry, kind string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "sankofa_dues_reminders_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "kind" && label.GetValue() == kind {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestEnqueueCountsOnlyQueuedReminders(t *testing.T) {
	reg := prometheus.NewRegistry()
	stub := &stubEnqueuer{failOn: map[string]error{
		"kwame@example.org": errors.New("redis: connection refused"),
	}}
	job := &DuesReminderScanJob{
		Client:  stub,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: jobmetrics.NewMetrics(reg),
	}

	job.enqueue(context.Background(), "member", []reminderRow{
		{Email: "ama@example.org", Label: "Ama Mensah", DueCount: 2, Remaining: 1800},
		{Email: "kwame@example.org", Label: "Kwame Osei", DueCount: 1, Remaining: 500},
		{Email: "efua@example.org", Label: "Efua Addo", DueCount: 1, Remaining: 300},
	})

	require.Len(t, stub.sent, 2)
	require.Equal(t, 2.0, reminderCounter(t, reg, "member"))
}

func TestEnqueueSkipsCounterWhenNothingQueued(t *testing.T) {
	reg := prometheus.NewRegistry()
	stub := &stubEnqueuer{failOn: map[string]error{
		"ama@example.org": errors.New("redis: connection refused"),
	}}
	job := &DuesReminderScanJob{
		Client:  stub,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: jobmetrics.NewMetrics(reg),
	}

	job.enqueue(context.Background(), "lineage", []reminderRow{
		{Email: "ama@example.org", Label: "Clan Asona", DueCount: 3, Remaining: 2400},
	})

	require.Empty(t, stub.sent)
	require.Equal(t, 0.0, reminderCounter(t, reg, "lineage"))
}
