// Package store defines the persistence boundary of the scheduling core and provides an
// in-memory implementation. State is partitioned by learner id.
package store

import (
	"context"
	"errors"

	"github.com/example/cardsched/pkg/models"
)

var (
	// ErrNotFound is returned by getters when no state exists for the key.
	ErrNotFound = errors.New("store: not found")
	// ErrWriteFailed marks a write or commit that did not persist.
	ErrWriteFailed = errors.New("store: write failed")
)

// DefaultHistoryLimit is the number of review events kept per learner.
const DefaultHistoryLimit = 2000

// Reader gives read access to a learner's model state.
type Reader interface {
	GetMasteryState(ctx context.Context, learnerID, component string) (models.MasteryState, error)
	GetIntervalState(ctx context.Context, learnerID, cardID string) (models.IntervalState, error)
	// MasteryStates returns every stored component state of the learner.
	MasteryStates(ctx context.Context, learnerID string) (map[string]models.MasteryState, error)
	// IntervalStates returns every stored card state of the learner.
	IntervalStates(ctx context.Context, learnerID string) (map[string]models.IntervalState, error)
	// History returns the retained review events, oldest first.
	History(ctx context.Context, learnerID string) ([]models.ReviewEvent, error)
}

// Writer mutates a learner's model state.
type Writer interface {
	SetMasteryState(ctx context.Context, learnerID, component string, s models.MasteryState) error
	SetIntervalState(ctx context.Context, learnerID, cardID string, s models.IntervalState) error
	// AppendHistory adds ev to the end of the history, evicting the oldest events beyond the limit.
	AppendHistory(ctx context.Context, learnerID string, ev models.ReviewEvent) error
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	Reader
	Writer
}

// Store is the persistence used by the scheduler and the review recorder.
type Store interface {
	Reader
	// Update runs fn as one unit of work for the learner: all of its writes become
	// visible together, or none do when fn or the commit fails.
	Update(ctx context.Context, learnerID string, fn func(tx Tx) error) error
	// DeleteLearner removes every state and event of the learner.
	DeleteLearner(ctx context.Context, learnerID string) error
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
