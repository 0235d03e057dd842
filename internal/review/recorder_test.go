package review

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cardsched/internal/bkt"
	"github.com/example/cardsched/internal/catalog"
	"github.com/example/cardsched/internal/clock"
	"github.com/example/cardsched/internal/spaced_repetition"
	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

var (
	day0 = models.NewDate(2025, time.June, 15)
	t0   = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
)

const learner = "alice"

type fixture struct {
	cat   *catalog.Catalog
	store *store.Memory
	clock *clock.Fixed
	rec   *Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.FromWords([]models.Word{
		{ID: 1, Hanzi: "吃", Pinyin: "chī", English: "eat", Category: "verb"},
		{ID: 2, Hanzi: "喝", Pinyin: "hē", English: "drink", Category: "verb"},
	}, nil)
	require.NoError(t, err)

	f := &fixture{cat: cat, store: store.NewMemory(0), clock: clock.NewFixed(day0)}
	n := 0
	f.rec = NewRecorder(cat, f.store, nil, nil, f.clock,
		WithNow(func() time.Time { return t0 }),
		WithIDs(func() string { n++; return fmt.Sprintf("ev-%d", n) }))
	return f
}

func TestRecordReviewUpdatesBothModels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.rec.RecordReview(ctx, learner, "1_meaning", true))

	is, err := f.store.GetIntervalState(ctx, learner, "1_meaning")
	require.NoError(t, err)
	assert.Equal(t, models.IntervalState{Interval: 1, Repetitions: 1, EaseFactor: 2.5, DueDate: day0.AddDays(1)}, is)

	ms, err := f.store.GetMasteryState(ctx, learner, "verb:meaning")
	require.NoError(t, err)
	assert.InDelta(t, 0.52, ms.PKnown, 1e-9)

	_, err = f.store.GetMasteryState(ctx, learner, "verb:pinyin")
	assert.True(t, store.IsNotFound(err), "other components are untouched")

	h, err := f.rec.History(ctx, learner)
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, models.ReviewEvent{
		ID: "ev-1", CardID: "1_meaning", Component: "verb:meaning", Correct: true, Timestamp: t0,
	}, h[0])
}

func TestSharedComponentAcrossCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.rec.RecordReview(ctx, learner, "1_meaning", true))
	require.NoError(t, f.rec.RecordReview(ctx, learner, "2_meaning", true))

	ms, err := f.store.GetMasteryState(ctx, learner, "verb:meaning")
	require.NoError(t, err)
	want := bkt.Update(bkt.Update(bkt.Defaults, true), true)
	assert.InDelta(t, want.PKnown, ms.PKnown, 1e-12)
}

func TestIntervalLadderThroughRecorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var intervals []int
	for i := 0; i < 3; i++ {
		require.NoError(t, f.rec.RecordReview(ctx, learner, "1_pinyin", true))
		is, err := f.store.GetIntervalState(ctx, learner, "1_pinyin")
		require.NoError(t, err)
		intervals = append(intervals, is.Interval)
		assert.Equal(t, f.clock.Today().AddDays(is.Interval), is.DueDate)
		f.clock.Set(is.DueDate)
	}
	assert.Equal(t, []int{1, 6, 15}, intervals)
}

func TestUnknownCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.rec.RecordReview(ctx, learner, "99_meaning", true)
	assert.ErrorIs(t, err, ErrUnknownCard)
	err = f.rec.OverrideToCorrect(ctx, learner, "99_meaning")
	assert.ErrorIs(t, err, ErrUnknownCard)

	h, err := f.rec.History(ctx, learner)
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestOverrideKeepsBothEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.rec.RecordReview(ctx, learner, "1_meaning", false))
	require.NoError(t, f.rec.OverrideToCorrect(ctx, learner, "1_meaning"))

	h, err := f.rec.History(ctx, learner)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.False(t, h[0].Correct)
	assert.False(t, h[0].Override)
	assert.True(t, h[1].Correct)
	assert.True(t, h[1].Override)

	ms, err := f.store.GetMasteryState(ctx, learner, "verb:meaning")
	require.NoError(t, err)
	want := bkt.Update(bkt.Update(bkt.Defaults, false), true)
	assert.InDelta(t, want.PKnown, ms.PKnown, 1e-12, "two sequential updates, not a rollback")

	is, err := f.store.GetIntervalState(ctx, learner, "1_meaning")
	require.NoError(t, err)
	assert.Equal(t, 1, is.Repetitions)
	assert.Equal(t, 1, is.Lapses)
	assert.Equal(t, 1, is.Interval)
	assert.InDelta(t, 2.3, is.EaseFactor, 1e-12)
}

// faultyStore fails the mastery write inside the unit of work.
type faultyStore struct {
	*store.Memory
}

type faultyTx struct{ store.Tx }

func (faultyTx) SetMasteryState(context.Context, string, string, models.MasteryState) error {
	return errors.New("disk full")
}

func (s faultyStore) Update(ctx context.Context, learnerID string, fn func(tx store.Tx) error) error {
	return s.Memory.Update(ctx, learnerID, func(tx store.Tx) error { return fn(faultyTx{tx}) })
}

func TestWriteFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := NewRecorder(f.cat, faultyStore{f.store}, spaced_repetition.NewSM2(), bkt.DefaultModel(), f.clock)

	err := rec.RecordReview(ctx, learner, "1_meaning", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrWriteFailed)

	_, err = f.store.GetIntervalState(ctx, learner, "1_meaning")
	assert.True(t, store.IsNotFound(err), "interval update must not be visible without the mastery update")
	h, err := f.store.History(ctx, learner)
	require.NoError(t, err)
	assert.Empty(t, h)
}

// flakyReads fails every get inside the unit of work.
type flakyReads struct {
	*store.Memory
}

type flakyTx struct{ store.Tx }

func (flakyTx) GetIntervalState(context.Context, string, string) (models.IntervalState, error) {
	return models.IntervalState{}, errors.New("timeout")
}

func (flakyTx) GetMasteryState(context.Context, string, string) (models.MasteryState, error) {
	return models.MasteryState{}, errors.New("timeout")
}

func (s flakyReads) Update(ctx context.Context, learnerID string, fn func(tx store.Tx) error) error {
	return s.Memory.Update(ctx, learnerID, func(tx store.Tx) error { return fn(flakyTx{tx}) })
}

func TestFailedReadTreatedAsNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := NewRecorder(f.cat, flakyReads{f.store}, nil, nil, f.clock)

	require.NoError(t, rec.RecordReview(ctx, learner, "2_pinyin", false))
	is, err := f.store.GetIntervalState(ctx, learner, "2_pinyin")
	require.NoError(t, err)
	assert.Equal(t, 1, is.Lapses)
}
