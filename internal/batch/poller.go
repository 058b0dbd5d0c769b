package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// DefaultInterval is the spacing between queue queries.
const DefaultInterval = 10 * time.Second

var ErrPollTimeout = errors.New("batch: job still queued at poll deadline")

// QueryFunc runs the status command for jobID and returns its stdout.
type QueryFunc func(ctx context.Context, jobID string) (string, error)

// Poller waits for a job to leave the queue.
type Poller struct {
	Interval time.Duration
	// Jitter adds a random 0..Jitter delay to each interval.
	Jitter time.Duration
	// Timeout bounds the whole wait; zero means only ctx bounds it.
	Timeout time.Duration
}

// Wait queries immediately and then once per interval until jobID is no
// longer listed. It returns the number of queries issued.
func (p Poller) Wait(ctx context.Context, jobID string, query QueryFunc) (int, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	polls := 0
	for {
		polls++
		out, err := query(ctx, jobID)
		if err != nil {
			return polls, p.stopErr(ctx, jobID, err)
		}
		if !Listed(out, jobID) {
			return polls, nil
		}

		delay := interval
		if p.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("batch: job %s still queued after %d polls", jobID, polls)
			return polls, p.stopErr(ctx, jobID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (p Poller) stopErr(ctx context.Context, jobID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && p.Timeout > 0 && ctx.Err() != nil {
		return fmt.Errorf("%w: job %s after %s: %w", ErrPollTimeout, jobID, p.Timeout, err)
	}
	return fmt.Errorf("batch: poll job %s: %w", jobID, err)
}
