package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInvalidJob  = errors.New("job requires an id, a kind and a fire time")
	ErrJobNotFound = errors.New("job not found")
	// ErrUndecodableJob marks claimed entries that could not be decoded and were dropped.
	ErrUndecodableJob = errors.New("undecodable job")
)

// Job is a one-shot unit of work fired at FireAt. Scheduling a job whose ID already
// exists replaces it.
type Job struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	FireAt  time.Time       `json:"fireAt"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (j Job) validate() error {
	if j.ID == "" || j.Kind == "" || j.FireAt.IsZero() {
		return ErrInvalidJob
	}
	return nil
}

// Store persists pending jobs so they survive restarts.
type Store interface {
	// Put inserts job, replacing any job with the same ID.
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Remove(ctx context.Context, id string) error
	// ClaimDue atomically removes and returns up to limit jobs with FireAt <= now.
	// A claimed job is never handed to a second caller. Entries that fail to decode are
	// dropped and reported with ErrUndecodableJob next to the jobs that did decode.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

type HandlerFunc func(ctx context.Context, job Job) error

type TaskFunc func(ctx context.Context) error
