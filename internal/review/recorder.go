// Package review applies learner answers to both scheduling models as one unit of work.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/bkt"
	"github.com/example/cardsched/internal/catalog"
	"github.com/example/cardsched/internal/clock"
	"github.com/example/cardsched/internal/metrics"
	"github.com/example/cardsched/internal/spaced_repetition"
	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

// ErrUnknownCard is returned when a review names a card that is not in the catalog.
var ErrUnknownCard = errors.New("review: unknown card")

// Recorder records reviews against the interval model, the mastery model and the history.
type Recorder struct {
	catalog *catalog.Catalog
	store   store.Store
	sm2     *spaced_repetition.SM2
	mastery *bkt.Model
	clock   clock.Clock
	now     func() time.Time
	newID   func() string
	logger  *zap.Logger
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithNow sets the timestamp source for history events.
func WithNow(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDs sets the event id generator.
func WithIDs(newID func() string) Option {
	return func(r *Recorder) { r.newID = newID }
}

// NewRecorder returns a recorder. Nil models fall back to their defaults.
func NewRecorder(cat *catalog.Catalog, st store.Store, sm2 *spaced_repetition.SM2, mastery *bkt.Model, clk clock.Clock, opts ...Option) *Recorder {
	if sm2 == nil {
		sm2 = spaced_repetition.NewSM2()
	}
	if mastery == nil {
		mastery = bkt.DefaultModel()
	}
	r := &Recorder{
		catalog: cat,
		store:   st,
		sm2:     sm2,
		mastery: mastery,
		clock:   clk,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordReview applies one answer: the card's interval state and its component's mastery
// state are updated and the event is appended to the history, all in one unit of work.
func (r *Recorder) RecordReview(ctx context.Context, learnerID, cardID string, correct bool) error {
	if err := r.record(ctx, learnerID, cardID, correct, false); err != nil {
		return err
	}
	metrics.ReviewsTotal.WithLabelValues(metrics.ResultLabel(correct)).Inc()
	return nil
}

// OverrideToCorrect re-records an earlier incorrect answer as correct. The original event is
// kept; a second, corrective review is applied on top of it, so both models see two updates.
func (r *Recorder) OverrideToCorrect(ctx context.Context, learnerID, cardID string) error {
	if err := r.record(ctx, learnerID, cardID, true, true); err != nil {
		return err
	}
	metrics.ReviewsTotal.WithLabelValues(metrics.ResultLabel(true)).Inc()
	metrics.OverridesTotal.Inc()
	return nil
}

// History returns the learner's retained review events, oldest first.
func (r *Recorder) History(ctx context.Context, learnerID string) ([]models.ReviewEvent, error) {
	h, err := r.store.History(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return h, nil
}

func (r *Recorder) record(ctx context.Context, learnerID, cardID string, correct, override bool) error {
	card, ok := r.catalog.Card(cardID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
	}
	today := r.clock.Today()

	err := r.store.Update(ctx, learnerID, func(tx store.Tx) error {
		interval, err := tx.GetIntervalState(ctx, learnerID, card.ID)
		if err != nil {
			r.absent("interval", learnerID, card.ID, err)
			interval = r.sm2.NewState(today)
		}
		mastery, err := tx.GetMasteryState(ctx, learnerID, card.Component)
		if err != nil {
			r.absent("mastery", learnerID, card.Component, err)
			mastery = r.mastery.Create(card.Component)
		}

		if err := tx.SetIntervalState(ctx, learnerID, card.ID, r.sm2.Review(interval, correct, today)); err != nil {
			return err
		}
		if err := tx.SetMasteryState(ctx, learnerID, card.Component, bkt.Update(mastery, correct)); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, learnerID, models.ReviewEvent{
			ID:        r.newID(),
			CardID:    card.ID,
			Component: card.Component,
			Correct:   correct,
			Override:  override,
			Timestamp: r.now().UTC(),
		})
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("record_review").Inc()
		r.logger.Error("failed to record review",
			zap.String("learner", learnerID), zap.String("card", card.ID),
			zap.Bool("correct", correct), zap.Error(err))
		if errors.Is(err, store.ErrWriteFailed) {
			return fmt.Errorf("failed to record review: %w", err)
		}
		return fmt.Errorf("failed to record review: %w: %w", store.ErrWriteFailed, err)
	}

	r.logger.Debug("review recorded",
		zap.String("learner", learnerID), zap.String("card", card.ID),
		zap.String("component", card.Component), zap.Bool("correct", correct),
		zap.Bool("override", override))
	return nil
}

// absent logs read failures other than a plain miss; either way the state is treated as new.
func (r *Recorder) absent(kind, learnerID, key string, err error) {
	if store.IsNotFound(err) {
		return
	}
	metrics.StoreErrors.WithLabelValues("get_" + kind).Inc()
	r.logger.Warn("failed to read state, treating as absent",
		zap.String("kind", kind), zap.String("learner", learnerID),
		zap.String("key", key), zap.Error(err))
}
