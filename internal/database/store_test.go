package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cardsched/internal/bkt"
	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect(TypeSQLite, MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var day0 = models.NewDate(2025, time.June, 15)

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(openTestDB(t), 0, nil)

	ms := models.MasteryState{PKnown: 0.52, PLearn: 0.2, PGuess: 0.15, PSlip: 0.1}
	is := models.IntervalState{Interval: 6, Repetitions: 2, EaseFactor: 2.5, DueDate: day0.AddDays(6), Lapses: 1}
	ev := models.ReviewEvent{
		ID: "ev-1", CardID: "1_meaning", Component: "verb:meaning",
		Correct: true, Timestamp: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
	}

	err := s.Update(ctx, "alice", func(tx store.Tx) error {
		require.NoError(t, tx.SetMasteryState(ctx, "alice", "verb:meaning", ms))
		require.NoError(t, tx.SetIntervalState(ctx, "alice", "1_meaning", is))
		return tx.AppendHistory(ctx, "alice", ev)
	})
	require.NoError(t, err)

	gotM, err := s.GetMasteryState(ctx, "alice", "verb:meaning")
	require.NoError(t, err)
	assert.Equal(t, ms, gotM)

	gotI, err := s.GetIntervalState(ctx, "alice", "1_meaning")
	require.NoError(t, err)
	assert.Equal(t, is, gotI)

	all, err := s.IntervalStates(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]models.IntervalState{"1_meaning": is}, all)

	h, err := s.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, ev.ID, h[0].ID)
	assert.True(t, h[0].Correct)
	assert.True(t, ev.Timestamp.Equal(h[0].Timestamp))

	_, err = s.GetMasteryState(ctx, "bob", "verb:meaning")
	assert.True(t, store.IsNotFound(err))
}

func TestStateStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(openTestDB(t), 0, nil)

	for _, p := range []float64{0.1, 0.4} {
		require.NoError(t, s.Update(ctx, "alice", func(tx store.Tx) error {
			return tx.SetMasteryState(ctx, "alice", "noun:pinyin", models.MasteryState{PKnown: p})
		}))
	}
	all, err := s.MasteryStates(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.InDelta(t, 0.4, all["noun:pinyin"].PKnown, 1e-12)
}

func TestStateStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(openTestDB(t), 0, nil)
	boom := errors.New("boom")

	err := s.Update(ctx, "alice", func(tx store.Tx) error {
		require.NoError(t, tx.SetIntervalState(ctx, "alice", "1_meaning", models.IntervalState{Interval: 1, DueDate: day0}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetIntervalState(ctx, "alice", "1_meaning")
	assert.True(t, store.IsNotFound(err))
}

func TestStateStoreHistoryCap(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(openTestDB(t), 3, nil)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Update(ctx, "alice", func(tx store.Tx) error {
			return tx.AppendHistory(ctx, "alice", models.ReviewEvent{
				ID: fmt.Sprintf("ev-%d", i), CardID: "1_meaning", Component: "verb:meaning", Timestamp: time.Now(),
			})
		}))
	}
	require.NoError(t, s.Update(ctx, "bob", func(tx store.Tx) error {
		return tx.AppendHistory(ctx, "bob", models.ReviewEvent{ID: "bob-1", CardID: "1_meaning", Component: "verb:meaning", Timestamp: time.Now()})
	}))

	h, err := s.History(ctx, "alice")
	require.NoError(t, err)
	var ids []string
	for _, ev := range h {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"ev-3", "ev-4", "ev-5"}, ids)

	h, err = s.History(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

func TestStateStoreDeleteLearner(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(openTestDB(t), 0, nil)

	require.NoError(t, s.Update(ctx, "alice", func(tx store.Tx) error {
		if err := tx.SetMasteryState(ctx, "alice", "verb:meaning", models.MasteryState{PKnown: 0.3}); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, "alice", models.ReviewEvent{ID: "a", CardID: "1_meaning", Component: "verb:meaning", Timestamp: time.Now()})
	}))
	require.NoError(t, s.DeleteLearner(ctx, "alice"))

	all, err := s.MasteryStates(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, all)
	h, err := s.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, h)
}

// concurrentUpdates applies n correct answers to one component from n goroutines,
// each reading and writing the mastery state inside its own Update.
func concurrentUpdates(t *testing.T, s *StateStore, learnerID string, n int) models.MasteryState {
	t.Helper()
	ctx := context.Background()
	start := bkt.Defaults

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, learnerID, func(tx store.Tx) error {
				ms, err := tx.GetMasteryState(ctx, learnerID, "verb:meaning")
				if store.IsNotFound(err) {
					ms, err = start, nil
				}
				if err != nil {
					return err
				}
				return tx.SetMasteryState(ctx, learnerID, "verb:meaning", bkt.Update(ms, true))
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetMasteryState(ctx, learnerID, "verb:meaning")
	require.NoError(t, err)
	return got
}

func sequentialMastery(n int) models.MasteryState {
	ms := bkt.Defaults
	for i := 0; i < n; i++ {
		ms = bkt.Update(ms, true)
	}
	return ms
}

func TestStateStoreConcurrentUpdatesSQLite(t *testing.T) {
	s := NewStateStore(openTestDB(t), 0, nil)
	got := concurrentUpdates(t, s, "alice", 8)
	assert.InDelta(t, sequentialMastery(8).PKnown, got.PKnown, 1e-9)
}

func TestStateStoreConcurrentUpdatesPostgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if !strings.HasPrefix(dsn, "postgres") {
		t.Skip("DATABASE_URL does not point at postgres")
	}
	db, err := Connect(TypePostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStateStore(db, 0, nil)
	learnerID := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = NewLearnerRepository(db).Delete(context.Background(), learnerID) })

	got := concurrentUpdates(t, s, learnerID, 8)
	assert.InDelta(t, sequentialMastery(8).PKnown, got.PKnown, 1e-9)
}

func TestUnsupportedDatabaseType(t *testing.T) {
	_, err := Connect("oracle", "x")
	assert.Error(t, err)
}
