package lifecycle

import (
	"context"
	"errors"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/relay"
	"golang.org/x/time/rate"
)

// pollJob queries an upstream job every PollInterval until it completes,
// fails or PollTimeout passes. The first query is immediate. Cancelling ctx
// stops polling without a state change.
func (c *Controller) pollJob(ctx context.Context, executionID, jobID string) {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	attempts := 0

	for {
		if err := limiter.Wait(pollCtx); err != nil {
			c.pollStopped(ctx, executionID, jobID, attempts)
			return
		}
		if c.isCancelled(executionID) {
			return
		}
		attempts++

		status, err := c.uploader.Status(pollCtx, jobID)
		if err != nil {
			if pollCtx.Err() != nil {
				c.pollStopped(ctx, executionID, jobID, attempts)
				return
			}
			c.onRelayError(ctx, executionID, err)
			return
		}

		switch status.Status {
		case relay.JobCompleted:
			results, err := c.uploader.Results(pollCtx, jobID)
			if err != nil {
				if pollCtx.Err() != nil {
					c.pollStopped(ctx, executionID, jobID, attempts)
					return
				}
				c.onRelayError(ctx, executionID, err)
				return
			}
			c.settle(executionID, models.StatusSuccess, models.MessageSucceeded, results)
			return
		case relay.JobFailed:
			message := status.Error
			if message == "" {
				message = models.MessageJobFailed
			}
			c.settle(executionID, models.StatusFailed, message, nil)
			return
		default:
			c.logger.Debug("Job still running",
				"execution_id", executionID,
				"job_id", jobID,
				"status", status.Status,
				"attempt", attempts)
		}
	}
}

// pollStopped handles the end of the polling window: a cancelled migration
// is left alone, anything else timed out.
func (c *Controller) pollStopped(ctx context.Context, executionID, jobID string, attempts int) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	c.logger.Warn("Polling timed out", "execution_id", executionID, "job_id", jobID, "attempts", attempts)
	c.settle(executionID, models.StatusFailed, models.MessageTimeout, nil)
}
