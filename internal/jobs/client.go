package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Client enqueues background tasks. It satisfies the export service's
// enqueuer dependency.
type Client struct {
	inner *asynq.Client
}

// NewClient constructs a queue client on the given Redis connection.
func NewClient(opts asynq.RedisClientOpt) *Client {
	return &Client{inner: asynq.NewClient(opts)}
}

// EnqueueExport queues the generation task for a stored export job.
func (c *Client) EnqueueExport(ctx context.Context, jobID string) error {
	task, err := NewExportTask(jobID)
	if err != nil {
		return fmt.Errorf("build export task: %w", err)
	}
	if _, err := c.inner.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue export task: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.inner.Close()
}
