package runqueue

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool is a bounded worker pool that claims and drives queued runs: an
// errgroup.WithContext over a fixed set of goroutines feeding a shared
// channel, so one worker's failure cancels the group's context and
// unblocks the rest. N workers repeatedly drain a kick channel of
// conversation ids.
type Pool struct {
	executor *Executor
	workers  int
	kicks    chan string
}

// NewPool returns a Pool of workers goroutines driven by executor. workers
// defaults to 1 when <= 0.
func NewPool(executor *Executor, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{executor: executor, workers: workers, kicks: make(chan string, 256)}
}

// Kick enqueues conversationID for a worker to attempt ClaimAndRun on
// (ScheduleSpeaker's "kick the run only if no running run
// exists for the conversation"). Non-blocking; a full buffer drops the
// kick since the run is already durably queued in the Store and will be
// picked up by the next successful claim attempt from any source.
func (p *Pool) Kick(conversationID string) {
	select {
	case p.kicks <- conversationID:
	default:
	}
}

// Run starts the worker pool and blocks until ctx is canceled or a worker
// returns a non-nil error, at which point the shared errgroup context is
// canceled and all workers stop.
func (p *Pool) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			return p.workerLoop(groupCtx)
		})
	}

	return group.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case conversationID, open := <-p.kicks:
			if !open {
				return nil
			}
			if _, err := p.executor.ClaimAndRun(ctx, conversationID); err != nil {
				return err
			}
		}
	}
}
