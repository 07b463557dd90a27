package status

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle position of one generation attempt
type State string

const (
	StatePending State = "PENDING"
	StateReady   State = "READY"
	StateFailed  State = "FAILED"
)

// Terminal reports whether no further transition is allowed from s
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// DefaultMaxAge is how long records are retained before cleanup removes them
const DefaultMaxAge = 24 * time.Hour

// ErrAlreadyCompleted is returned when marking a record that is already READY or FAILED
var ErrAlreadyCompleted = errors.New("transition status already completed")

// Status is the polling view of a generation attempt, keyed by transition id
type Status struct {
	State        State      `json:"status"`
	TransitionID string     `json:"transitionId"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Tracker records PENDING -> READY | FAILED per transition id.
// Implementations must be safe for concurrent use. Records are a monitoring
// aid only; an absent record means unknown, not failed.
type Tracker interface {
	SetPending(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
	// Get returns nil, nil when no record exists
	Get(ctx context.Context, id string) (*Status, error)
	// Cleanup removes records created more than maxAge ago regardless of state
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// complete applies a terminal transition to an existing (or missing) record
func complete(existing *Status, id string, state State, message string, now time.Time) (*Status, error) {
	if existing != nil && existing.State.Terminal() {
		return nil, ErrAlreadyCompleted
	}
	created := now
	if existing != nil {
		created = existing.CreatedAt
	}
	completed := now
	return &Status{
		State:        state,
		TransitionID: id,
		CreatedAt:    created,
		CompletedAt:  &completed,
		Error:        message,
	}, nil
}
