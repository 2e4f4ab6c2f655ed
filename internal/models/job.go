package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobStatus enumerates lifecycle states persisted in the job store.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can leave the status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Itinerary is the ordered list of day entries produced for a job.
// Each entry is kept exactly as the provider returned it, typically
// {day, theme, activities[{time, description, location}]} with any subset of those fields.
type Itinerary []json.RawMessage

// Job is the record stored per job ID. The ID is the storage key and is not part of the stored value.
type Job struct {
	ID           string     `json:"-"`
	Status       JobStatus  `json:"status"`
	Destination  string     `json:"destination"`
	DurationDays int        `json:"durationDays"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	Itinerary    Itinerary  `json:"itinerary"`
	Error        *string    `json:"error"`
}

// NewProcessingJob builds the initial record written at creation time.
func NewProcessingJob(id, destination string, durationDays int, createdAt time.Time) Job {
	return Job{
		ID:           id,
		Status:       StatusProcessing,
		Destination:  destination,
		DurationDays: durationDays,
		CreatedAt:    createdAt,
		Itinerary:    Itinerary{},
	}
}

// Complete returns the terminal record for a successful generation.
func (j Job) Complete(itinerary Itinerary, at time.Time) Job {
	j.Status = StatusCompleted
	j.Itinerary = itinerary
	j.Error = nil
	j.CompletedAt = &at
	return j
}

// Fail returns the terminal record for a failed generation.
func (j Job) Fail(message string, at time.Time) Job {
	j.Status = StatusFailed
	j.Itinerary = Itinerary{}
	j.Error = &message
	j.CompletedAt = &at
	return j
}

// Validate checks the record invariants that tie completedAt, itinerary and error to the status.
func (j Job) Validate() error {
	switch j.Status {
	case StatusProcessing, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", j.Status)
	}
	if (j.CompletedAt != nil) != j.Status.Terminal() {
		return errors.New("completedAt must be set exactly when the job is terminal")
	}
	if (len(j.Itinerary) > 0) != (j.Status == StatusCompleted) {
		return errors.New("itinerary must be non-empty exactly when the job is completed")
	}
	if (j.Error != nil) != (j.Status == StatusFailed) {
		return errors.New("error must be set exactly when the job has failed")
	}
	return nil
}

// Task is the unit of detached work handed to a dispatcher.
type Task struct {
	JobID        string    `json:"job_id"`
	Destination  string    `json:"destination"`
	DurationDays int       `json:"duration_days"`
	CreatedAt    time.Time `json:"created_at"`
}

// TaskFor derives the generation task for a freshly created job.
func TaskFor(j Job) Task {
	return Task{
		JobID:        j.ID,
		Destination:  j.Destination,
		DurationDays: j.DurationDays,
		CreatedAt:    j.CreatedAt,
	}
}

// Job rebuilds the processing record the task was created from.
func (t Task) Job() Job {
	return NewProcessingJob(t.JobID, t.Destination, t.DurationDays, t.CreatedAt)
}
