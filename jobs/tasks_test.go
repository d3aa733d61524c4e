package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/lako-services/lako-web/internal/jobs"
	"github.com/lako-services/lako-web/internal/notify"
)

type stubDispatcher struct {
	report notify.Report
	got    []notify.Notification
}

func (s *stubDispatcher) Dispatch(_ context.Context, n notify.Notification) notify.Report {
	s.got = append(s.got, n)
	return s.report
}

func sample() notify.Notification {
	return notify.Notification{Kind: notify.KindRegistration, Subject: "Novi zahtev", Payload: json.RawMessage(`{"city":"Beograd"}`)}
}

func TestDeliverTaskRoundTrip(t *testing.T) {
	task, err := NewDeliverTask(sample())
	require.NoError(t, err)
	assert.Equal(t, TaskNotifyDeliver, task.Type())

	d := &stubDispatcher{report: notify.Report{Delivered: []string{"telegram"}}}
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	require.NoError(t, NewDeliverHandler(d, metrics, nil)(context.Background(), task))

	require.Len(t, d.got, 1)
	assert.Equal(t, "Novi zahtev", d.got[0].Subject)
	assert.JSONEq(t, `{"city":"Beograd"}`, string(d.got[0].Payload))
	assert.Equal(t, float64(1), jobRuns(t, registry, notify.KindRegistration, jobmetrics.StatusSuccess))
}

func TestDeliverHandlerLabelsPartialDelivery(t *testing.T) {
	task, err := NewDeliverTask(sample())
	require.NoError(t, err)
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	d := &stubDispatcher{report: notify.Report{
		Delivered: []string{"telegram"},
		Failed:    map[string]error{"resend": errors.New("down"), "smtp": errors.New("refused")},
	}}

	require.NoError(t, NewDeliverHandler(d, metrics, nil)(context.Background(), task))

	assert.Equal(t, float64(1), jobRuns(t, registry, notify.KindRegistration, jobmetrics.StatusPartial))
	assert.Equal(t, float64(0), jobRuns(t, registry, notify.KindRegistration, jobmetrics.StatusSuccess))
	families, err := registry.Gather()
	require.NoError(t, err)
	sinks := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "lako_job_sink_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "sink" {
					sinks[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"resend": 1, "smtp": 1}, sinks)
}

func TestDeliverHandlerCountsDroppedPayload(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	err := NewDeliverHandler(&stubDispatcher{}, metrics, nil)(context.Background(), asynq.NewTask(TaskNotifyDeliver, []byte("{")))

	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, float64(1), jobRuns(t, registry, "unknown", jobmetrics.StatusDropped))
}

func jobRuns(t *testing.T, registry *prometheus.Registry, kind, status string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	var value float64
	for _, mf := range families {
		if mf.GetName() != "lako_jobs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["job"] == TaskNotifyDeliver && labels["kind"] == kind && labels["status"] == status {
				value = m.GetCounter().GetValue()
			}
		}
	}
	return value
}

func TestDeliverHandlerRetriesOnlyTotalFailure(t *testing.T) {
	task, err := NewDeliverTask(sample())
	require.NoError(t, err)

	failed := &stubDispatcher{report: notify.Report{Failed: map[string]error{"resend": errors.New("down")}}}
	assert.ErrorIs(t, NewDeliverHandler(failed, nil, nil)(context.Background(), task), ErrNotDelivered)

	partial := &stubDispatcher{report: notify.Report{
		Delivered: []string{"telegram"},
		Failed:    map[string]error{"resend": errors.New("down")},
	}}
	assert.NoError(t, NewDeliverHandler(partial, nil, nil)(context.Background(), task))

	skipped := &stubDispatcher{report: notify.Report{Skipped: []string{"registry"}}}
	assert.NoError(t, NewDeliverHandler(skipped, nil, nil)(context.Background(), task))
}

func TestDeliverHandlerSkipsBrokenPayload(t *testing.T) {
	task := asynq.NewTask(TaskNotifyDeliver, []byte("{"))

	err := NewDeliverHandler(&stubDispatcher{}, nil, nil)(context.Background(), task)

	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestQueueDispatcher(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewQueueDispatcher(&Client{client: enq}, nil)

	report := q.Dispatch(context.Background(), sample())

	assert.True(t, report.Any())
	assert.Equal(t, []string{"queue"}, report.Delivered)
	require.Len(t, enq.tasks, 1)
	var payload DeliverPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, notify.KindRegistration, payload.Notification.Kind)

	enq.err = errors.New("redis down")
	report = q.Dispatch(context.Background(), sample())
	assert.False(t, report.Any())
	assert.Contains(t, report.Failed, "queue")
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(nil, nil).health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}})
	assert.Error(t, err)
}
