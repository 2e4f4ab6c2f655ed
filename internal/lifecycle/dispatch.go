package lifecycle

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"itinerary-planner/internal/models"
)

// TaskRunner executes a single generation task.
type TaskRunner interface {
	Run(ctx context.Context, task models.Task) error
}

// GoroutineDispatcher runs each task in its own goroutine inside the current process.
// Tasks are detached from the dispatching request: cancelling the request does not cancel them.
type GoroutineDispatcher struct {
	runner TaskRunner
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewGoroutineDispatcher(runner TaskRunner, logger zerolog.Logger) *GoroutineDispatcher {
	return &GoroutineDispatcher{runner: runner, logger: logger}
}

func (d *GoroutineDispatcher) Dispatch(ctx context.Context, task models.Task) error {
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.runner.Run(detached, task); err != nil {
			d.logger.Error().Err(err).Str("job_id", task.JobID).Msg("generation task ended without a terminal record")
		}
	}()
	return nil
}

// Wait blocks until every dispatched task has returned or ctx is done.
func (d *GoroutineDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
