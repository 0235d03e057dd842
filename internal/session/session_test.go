package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cardsched/internal/catalog"
	"github.com/example/cardsched/internal/clock"
	"github.com/example/cardsched/internal/review"
	"github.com/example/cardsched/internal/scheduler"
	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

type deps struct {
	store    *store.Memory
	sched    *scheduler.Scheduler
	recorder *review.Recorder
}

func newDeps(t *testing.T) deps {
	t.Helper()
	cat, err := catalog.FromWords([]models.Word{
		{ID: 1, Hanzi: "吃", Pinyin: "chī", English: "eat", Category: "verb"},
		{ID: 2, Hanzi: "水", Pinyin: "shuǐ", English: "water", Category: "noun"},
	}, nil)
	require.NoError(t, err)

	st := store.NewMemory(0)
	clk := clock.NewFixed(models.NewDate(2025, time.June, 15))
	cfg := scheduler.DefaultConfig()
	cfg.Epsilon = 0
	sched, err := scheduler.NewScheduler(cat, st, nil, clk, cfg, scheduler.WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	return deps{store: st, sched: sched, recorder: review.NewRecorder(cat, st, nil, nil, clk)}
}

func TestSessionAnswerOverrideNext(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t)

	s, err := Start(ctx, "alice", d.sched, d.recorder, 0)
	require.NoError(t, err)
	first, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, PhaseInput, s.Phase())

	assert.ErrorIs(t, s.Override(ctx), ErrWrongPhase)
	assert.ErrorIs(t, s.Next(ctx), ErrWrongPhase)

	require.NoError(t, s.Answer(ctx, false))
	assert.Equal(t, PhaseResult, s.Phase())
	assert.ErrorIs(t, s.Answer(ctx, true), ErrWrongPhase)
	assert.Zero(t, s.Accuracy())

	require.NoError(t, s.Override(ctx))
	assert.True(t, s.LastCorrect())
	assert.Equal(t, 1.0, s.Accuracy())
	assert.ErrorIs(t, s.Override(ctx), ErrNothingToOverride)

	h, err := d.store.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, first.ID, h[1].CardID)
	assert.True(t, h[1].Override)

	require.NoError(t, s.Next(ctx))
	second, ok := s.Current()
	require.True(t, ok)
	assert.NotEqual(t, first.ID, second.ID, "a reviewed card is not due again today")

	require.NoError(t, s.Answer(ctx, true))
	assert.ErrorIs(t, s.Override(ctx), ErrNothingToOverride)
	assert.Equal(t, 2, s.Answered())
	assert.Equal(t, 2, s.Correct())
}

func TestSessionEndsWhenCardsRunOut(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t)

	s, err := Start(ctx, "alice", d.sched, d.recorder, 0)
	require.NoError(t, err)
	seen := map[string]bool{}
	for !s.Done() {
		c, ok := s.Current()
		require.True(t, ok)
		seen[c.ID] = true
		require.NoError(t, s.Answer(ctx, true))
		require.NoError(t, s.Next(ctx))
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 4, s.Answered())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSessionLimit(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t)

	s, err := Start(ctx, "alice", d.sched, d.recorder, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Answer(ctx, false))
		require.NoError(t, s.Next(ctx))
	}
	assert.True(t, s.Done())
	assert.Equal(t, 2, s.Answered())
}

type failingRecorder struct{}

func (failingRecorder) RecordReview(context.Context, string, string, bool) error {
	return store.ErrWriteFailed
}

func (failingRecorder) OverrideToCorrect(context.Context, string, string) error {
	return store.ErrWriteFailed
}

func TestFailedAnswerCanBeRetried(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t)

	s, err := Start(ctx, "alice", d.sched, failingRecorder{}, 0)
	require.NoError(t, err)
	err = s.Answer(ctx, true)
	assert.True(t, errors.Is(err, store.ErrWriteFailed))
	assert.Equal(t, PhaseInput, s.Phase())
	assert.Zero(t, s.Answered())
}

func TestEmptyCatalogSessionIsDone(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.New(nil)
	require.NoError(t, err)
	st := store.NewMemory(0)
	clk := clock.NewFixed(models.NewDate(2025, time.June, 15))
	sched, err := scheduler.NewScheduler(cat, st, nil, clk, scheduler.DefaultConfig())
	require.NoError(t, err)

	s, err := Start(ctx, "alice", sched, review.NewRecorder(cat, st, nil, nil, clk), 0)
	require.NoError(t, err)
	assert.True(t, s.Done())
}

func TestManagerAbandonRecordsNothing(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t)
	m := NewManager(d.sched, d.recorder, 0)

	first, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = m.Start(ctx, "alice")
	require.NoError(t, err)

	got, ok := m.Get("alice")
	require.True(t, ok)
	assert.NotSame(t, first, got)

	h, err := d.store.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, h)

	m.End("alice")
	_, ok = m.Get("alice")
	assert.False(t, ok)
}
