package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// testPushBudget caps the total time spent on a synchronous test push,
// including its single retry.
const testPushBudget = 10 * time.Second

// Dispatch sends all messages through the notifier concurrently, with no
// ordering guarantee, and returns the number of failed sends. Each outcome
// is collected independently; one failure never cancels the other sends.
func Dispatch(ctx context.Context, n Notifier, messages []Message) int {
	var failed atomic.Int64

	g := new(errgroup.Group)
	for _, msg := range messages {
		g.Go(func() error {
			if err := n.Send(ctx, msg.Title, msg.Content); err != nil {
				slog.Error("notification send failed",
					"channel", n.Name(),
					"title", msg.Title,
					"error", err,
				)
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // sends never return an error through the group

	return int(failed.Load())
}

// SendTestWithRetry performs the synchronous out-of-cycle test push: two
// attempts with a short exponential backoff inside a fixed time budget. The
// outcome is reported to the caller directly instead of through the
// failed-push counter.
func SendTestWithRetry(ctx context.Context, n Notifier, msg Message) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = testPushBudget

	operation := func() error {
		return n.Send(ctx, msg.Title, msg.Content)
	}

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, 1), ctx))
}
