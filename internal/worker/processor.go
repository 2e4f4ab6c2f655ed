package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"itinerary-planner/internal/lifecycle"
	"itinerary-planner/internal/models"
	"itinerary-planner/internal/telemetry"
)

// TaskSource yields dispatched generation tasks.
type TaskSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (models.Task, bool, error)
	ReadyDepth(ctx context.Context) (int64, error)
}

// Processor drives the worker execution loop.
type Processor struct {
	source       TaskSource
	runner       lifecycle.TaskRunner
	logger       zerolog.Logger
	pollInterval time.Duration
	slots        chan struct{}
	workerID     string
}

// NewProcessor creates a processor running at most concurrency tasks at once.
func NewProcessor(source TaskSource, runner lifecycle.TaskRunner, logger zerolog.Logger, pollInterval time.Duration, concurrency int, workerID string) *Processor {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Processor{
		source:       source,
		runner:       runner,
		logger:       logger.With().Str("worker_id", workerID).Logger(),
		pollInterval: pollInterval,
		slots:        make(chan struct{}, concurrency),
		workerID:     workerID,
	}
}

// Run starts the main worker loop until context cancellation, then waits for running tasks.
// Running tasks are not cancelled; they finish on a detached context.
func (p *Processor) Run(ctx context.Context) error {
	defer p.drain()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.slots <- struct{}{}:
		}

		if depth, err := p.source.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		task, ok, err := p.source.Dequeue(ctx, p.pollInterval)
		if err != nil {
			<-p.slots
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error().Err(err).Msg("dequeue failed")
			p.sleep(ctx)
			continue
		}
		if !ok {
			<-p.slots
			continue
		}

		go func(task models.Task) {
			defer func() { <-p.slots }()
			if err := p.runner.Run(context.WithoutCancel(ctx), task); err != nil {
				p.logger.Error().Err(err).Str("job_id", task.JobID).Msg("task ended without a terminal record")
			}
		}(task)
	}
}

func (p *Processor) drain() {
	for i := 0; i < cap(p.slots); i++ {
		p.slots <- struct{}{}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
