package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"itinerary-planner/internal/itinerary"
	"itinerary-planner/internal/models"
	"itinerary-planner/internal/telemetry"
)

// Generator produces the raw itinerary text for a destination.
type Generator interface {
	Generate(ctx context.Context, destination string, durationDays int) (string, error)
}

// JobStore is the typed record store the manager reads and writes.
type JobStore interface {
	Put(ctx context.Context, job models.Job) error
	Get(ctx context.Context, jobID string) (models.Job, error)
}

// Dispatcher hands a generation task to something that runs it independently of the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, task models.Task) error
}

// Manager drives a job from creation through its single terminal transition.
type Manager struct {
	store      JobStore
	generator  Generator
	dispatcher Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides job ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

func NewManager(st JobStore, gen Generator, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		generator: gen,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDispatcher binds the dispatcher used by Create. It must be called before serving requests.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.dispatcher = d
}

// ValidateRequest checks a creation request and returns the normalized destination.
func ValidateRequest(destination string, durationDays int) (string, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return "", &models.ValidationError{Field: "destination", Reason: "is required"}
	}
	if durationDays <= 0 {
		return "", &models.ValidationError{Field: "durationDays", Reason: "must be a positive integer"}
	}
	return destination, nil
}

// Create validates the request, stores the processing record and dispatches generation.
// It returns as soon as the task is handed off.
func (m *Manager) Create(ctx context.Context, destination string, durationDays int) (string, error) {
	destination, err := ValidateRequest(destination, durationDays)
	if err != nil {
		telemetry.ValidationRejects.Inc()
		return "", err
	}
	if m.dispatcher == nil {
		return "", errors.New("no dispatcher configured")
	}

	job := models.NewProcessingJob(m.newID(), destination, durationDays, m.now())
	if err := m.store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("save processing state: %w", err)
	}
	m.logger.Info().Str("job_id", job.ID).Str("destination", destination).Int("duration_days", durationDays).Msg("saved processing state")

	if err := m.dispatcher.Dispatch(ctx, models.TaskFor(job)); err != nil {
		msg := fmt.Sprintf("dispatch generation task: %v", err)
		if putErr := m.store.Put(ctx, job.Fail(msg, m.now())); putErr != nil {
			m.logger.Error().Err(putErr).Str("job_id", job.ID).Msg("could not record dispatch failure")
		}
		telemetry.JobsFailed.WithLabelValues("dispatch").Inc()
		return "", errors.New(msg)
	}
	telemetry.JobsCreated.Inc()
	return job.ID, nil
}

// Run executes generation for a task and writes exactly one terminal record.
// Every failure, including a panic, ends in a persisted failed record; Run only returns
// an error when that record itself could not be written.
func (m *Manager) Run(ctx context.Context, task models.Task) (err error) {
	log := m.logger.With().Str("job_id", task.JobID).Logger()
	job := task.Job()

	if current, getErr := m.store.Get(ctx, task.JobID); getErr == nil && current.Status.Terminal() {
		log.Info().Str("status", string(current.Status)).Msg("job already terminal, skipping")
		return nil
	}

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("generation task panicked")
			err = m.finish(ctx, log, job.Fail(fmt.Sprintf("internal error: %v", r), m.now()), "panic")
		}
	}()

	log.Info().Msg("starting itinerary generation")
	raw, genErr := m.generator.Generate(ctx, task.Destination, task.DurationDays)
	if genErr != nil {
		log.Error().Err(genErr).Msg("generation failed")
		return m.finish(ctx, log, job.Fail(genErr.Error(), m.now()), failureReason(genErr))
	}

	plan, parseErr := itinerary.Parse(raw)
	if parseErr != nil {
		log.Error().Err(parseErr).Msg("failed to parse provider reply")
		return m.finish(ctx, log, job.Fail(parseErr.Error(), m.now()), "parse")
	}

	return m.finish(ctx, log, job.Complete(plan, m.now()), "")
}

func (m *Manager) finish(ctx context.Context, log zerolog.Logger, job models.Job, reason string) error {
	if err := m.store.Put(ctx, job); err != nil {
		log.Error().Err(err).Str("status", string(job.Status)).Msg("could not save terminal state")
		return fmt.Errorf("save %s state for job %s: %w", job.Status, job.ID, err)
	}
	if job.Status == models.StatusCompleted {
		telemetry.JobsCompleted.Inc()
		log.Info().Int("days", len(job.Itinerary)).Msg("itinerary saved")
	} else {
		telemetry.JobsFailed.WithLabelValues(reason).Inc()
		log.Info().Msg("failure saved")
	}
	return nil
}

// Lookup returns the current record for jobID, or models.ErrNotFound.
func (m *Manager) Lookup(ctx context.Context, jobID string) (models.Job, error) {
	return m.store.Get(ctx, jobID)
}

func failureReason(err error) string {
	var perr *models.ProviderError
	var parseErr *models.ParseError
	switch {
	case errors.As(err, &perr) && perr.Timeout():
		return "timeout"
	case errors.As(err, &perr):
		return "provider"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "unknown"
	}
}
