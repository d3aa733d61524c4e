package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/lako-services/lako-web/internal/platform/cache"
	"github.com/lako-services/lako-web/jobs"
)

// queueInspector is the part of *asynq.Inspector the commands use.
type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunAllArchivedTasks(queue string) (int, error)
	Close() error
}

// QueueStats summarises the notification queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// JobsCLI inspects the notification delivery queue.
type JobsCLI struct {
	inspector queueInspector
}

// NewJobsCLI connects to the queue at redisAddr.
func NewJobsCLI(redisAddr string) *JobsCLI {
	return &JobsCLI{inspector: asynq.NewInspector(cache.QueueOpt(redisAddr))}
}

// Close releases the inspector.
func (c *JobsCLI) Close() error {
	if c == nil || c.inspector == nil {
		return nil
	}
	return c.inspector.Close()
}

// InspectQueue reports the default queue counters.
func (c *JobsCLI) InspectQueue(_ context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
		stats.Archived = int(info.Archived)
	}
	return stats, nil
}

// ListFailing returns deliveries waiting for a retry, followed by those that
// exhausted their retries.
func (c *JobsCLI) ListFailing(_ context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	retry, err := c.inspector.ListRetryTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	archived, err := c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	return append(retry, archived...), nil
}

// Redeliver requeues every archived delivery.
func (c *JobsCLI) Redeliver(_ context.Context) (int, error) {
	if c == nil || c.inspector == nil {
		return 0, errors.New("jobs cli: inspector not configured")
	}
	return c.inspector.RunAllArchivedTasks(jobs.QueueDefault)
}

func newJobsCommand(rt *runtime) *cobra.Command {
	var jobsCLI *JobsCLI
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the notification delivery queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.init(cmd); err != nil {
				return err
			}
			if jobsCLI == nil {
				jobsCLI = NewJobsCLI(rt.cfg.RedisAddr)
			}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return jobsCLI.Close()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		},
	})

	var size int
	failing := &cobra.Command{
		Use:   "failing",
		Short: "List deliveries that failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := jobsCLI.ListFailing(cmd.Context(), size)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tRETRIED\tLAST ERROR")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", t.ID, t.State, t.Retried, t.MaxRetry, t.LastErr)
			}
			return tw.Flush()
		},
	}
	failing.Flags().IntVar(&size, "size", 10, "page size")
	cmd.AddCommand(failing)

	cmd.AddCommand(&cobra.Command{
		Use:   "redeliver",
		Short: "Requeue deliveries that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := jobsCLI.Redeliver(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d deliveries requeued\n", n)
			return nil
		},
	})
	return cmd
}
