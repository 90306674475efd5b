package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/spark-playbook/playbook/jobs"
)

// JobsCLI wraps manual management helpers for the mail queue.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the helpers against redisAddr.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// SendTest enqueues a test message so SMTP delivery can be checked end to end.
func (c *JobsCLI) SendTest(ctx context.Context, to string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      to,
		Subject: "Spark Playbook test message",
		Body:    "If you can read this, the mail worker is delivering.",
	})
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and exercise the background mail queue",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Print default queue counters",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withJobs(func(c *JobsCLI) error {
					stats, err := c.InspectQueue()
					if err != nil {
						return err
					}
					cmd.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
						stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "send-test <email>",
			Short: "Enqueue a test email",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withJobs(func(c *JobsCLI) error {
					ctx := cmd.Context()
					if ctx == nil {
						ctx = context.Background()
					}
					info, err := c.SendTest(ctx, args[0])
					if err != nil {
						return err
					}
					cmd.Printf("enqueued %s on %s\n", info.ID, info.Queue)
					return nil
				})
			},
		},
	)
	return cmd
}

func withJobs(fn func(*JobsCLI) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	c := NewJobsCLI(cfg.RedisAddr)
	return errors.Join(fn(c), c.Close())
}
