package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"itinerary-planner/internal/models"
)

// KV is a durable, eventually consistent key-value map.
// Get returns models.ErrNotFound when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// JobStore stores job records as JSON values keyed by job ID.
type JobStore struct {
	kv     KV
	prefix string
}

// NewJobStore wraps kv. prefix is prepended to every job ID to form the storage key.
func NewJobStore(kv KV, prefix string) *JobStore {
	return &JobStore{kv: kv, prefix: prefix}
}

func (s *JobStore) key(jobID string) string {
	return s.prefix + jobID
}

// Put overwrites the record for job.ID. Records that break the status invariants are refused.
func (s *JobStore) Put(ctx context.Context, job models.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("refusing to store job %s: %w", job.ID, err)
	}
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := s.kv.Put(ctx, s.key(job.ID), value); err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads the record for jobID, or models.ErrNotFound.
func (s *JobStore) Get(ctx context.Context, jobID string) (models.Job, error) {
	value, err := s.GetRaw(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	var job models.Job
	if err := json.Unmarshal(value, &job); err != nil {
		return models.Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	job.ID = jobID
	if job.Itinerary == nil {
		job.Itinerary = models.Itinerary{}
	}
	return job, nil
}

// GetRaw returns the stored bytes for jobID unchanged.
func (s *JobStore) GetRaw(ctx context.Context, jobID string) ([]byte, error) {
	value, err := s.kv.Get(ctx, s.key(jobID))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return value, nil
}
