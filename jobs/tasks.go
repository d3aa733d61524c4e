package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/lako-services/lako-web/internal/jobs"
	"github.com/lako-services/lako-web/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyDeliver delivers a form notification to the sinks.
	TaskNotifyDeliver = "notify:deliver"
	// DeliverMaxRetry bounds redelivery attempts.
	DeliverMaxRetry = 5
	// DeliverTimeout bounds a single delivery attempt.
	DeliverTimeout = 30 * time.Second
)

// ErrNotDelivered is returned when every sink failed, so the task is retried.
var ErrNotDelivered = errors.New("jobs: notification not delivered")

// DeliverPayload is the queued notification.
type DeliverPayload struct {
	Notification notify.Notification `json:"notification"`
}

// NewDeliverTask constructs an Asynq task for n.
func NewDeliverTask(n notify.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(DeliverPayload{Notification: n})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDeliver, data,
		asynq.MaxRetry(DeliverMaxRetry),
		asynq.Timeout(DeliverTimeout),
	), nil
}

// Dispatcher is the synchronous fan-out the worker delegates to.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Report
}

// NewDeliverHandler processes TaskNotifyDeliver tasks. A task is retried only
// when no sink delivered; partial success is final to avoid duplicates.
func NewDeliverHandler(d Dispatcher, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskNotifyDeliver)
		var payload DeliverPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
		}
		tracker.SetKind(payload.Notification.Kind)
		report := d.Dispatch(ctx, payload.Notification)
		tracker.SinkFailed(slices.Sorted(maps.Keys(report.Failed))...)
		logger.Info("notification delivered",
			slog.String("kind", payload.Notification.Kind),
			slog.Any("delivered", report.Delivered),
			slog.Int("failed", len(report.Failed)))
		if !report.Any() && len(report.Failed) > 0 {
			return tracker.End(ErrNotDelivered)
		}
		return tracker.End(nil)
	}
}
