package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cardsched/pkg/models"
)

func TestMemoryAbsentState(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	_, err := m.GetMasteryState(ctx, "alice", "verb:meaning")
	assert.True(t, IsNotFound(err))
	_, err = m.GetIntervalState(ctx, "alice", "1_meaning")
	assert.True(t, IsNotFound(err))

	states, err := m.IntervalStates(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestMemoryUpdateCommitsTogether(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	err := m.Update(ctx, "alice", func(tx Tx) error {
		require.NoError(t, tx.SetIntervalState(ctx, "alice", "1_meaning", models.IntervalState{Interval: 1, EaseFactor: 2.5}))
		require.NoError(t, tx.SetMasteryState(ctx, "alice", "verb:meaning", models.MasteryState{PKnown: 0.5}))
		require.NoError(t, tx.AppendHistory(ctx, "alice", models.ReviewEvent{CardID: "1_meaning", Correct: true}))

		// Writes are visible inside the unit of work.
		s, err := tx.GetMasteryState(ctx, "alice", "verb:meaning")
		require.NoError(t, err)
		assert.Equal(t, 0.5, s.PKnown)
		return nil
	})
	require.NoError(t, err)

	is, err := m.GetIntervalState(ctx, "alice", "1_meaning")
	require.NoError(t, err)
	assert.Equal(t, 1, is.Interval)

	ms, err := m.GetMasteryState(ctx, "alice", "verb:meaning")
	require.NoError(t, err)
	assert.Equal(t, 0.5, ms.PKnown)

	h, err := m.History(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

func TestMemoryUpdateRollsBackOnError(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Update(ctx, "alice", func(tx Tx) error {
		require.NoError(t, tx.SetIntervalState(ctx, "alice", "1_meaning", models.IntervalState{Interval: 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = m.GetIntervalState(ctx, "alice", "1_meaning")
	assert.True(t, IsNotFound(err), "a failed unit of work must leave no partial state")
}

func TestMemoryTxRejectsOtherLearner(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	err := m.Update(ctx, "alice", func(tx Tx) error {
		return tx.SetMasteryState(ctx, "bob", "verb:meaning", models.MasteryState{})
	})
	assert.Error(t, err)
}

func TestMemoryHistoryCap(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := m.Update(ctx, "alice", func(tx Tx) error {
			return tx.AppendHistory(ctx, "alice", models.ReviewEvent{CardID: fmt.Sprintf("%d_meaning", i)})
		})
		require.NoError(t, err)
	}

	h, err := m.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, "2_meaning", h[0].CardID)
	assert.Equal(t, "4_meaning", h[2].CardID)
}

func TestMemoryLearnersAreIsolated(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, learner := range []string{"alice", "bob", "carol"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = m.Update(ctx, id, func(tx Tx) error {
					return tx.AppendHistory(ctx, id, models.ReviewEvent{CardID: id})
				})
			}
		}(learner)
	}
	wg.Wait()

	for _, learner := range []string{"alice", "bob", "carol"} {
		h, err := m.History(ctx, learner)
		require.NoError(t, err)
		assert.Len(t, h, 100)
		for _, ev := range h {
			assert.Equal(t, learner, ev.CardID)
		}
	}

	require.NoError(t, m.DeleteLearner(ctx, "bob"))
	h, err := m.History(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, h)
}
