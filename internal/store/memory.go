package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/cardsched/pkg/models"
)

type learnerData struct {
	mastery  map[string]models.MasteryState
	interval map[string]models.IntervalState
	history  []models.ReviewEvent
}

func newLearnerData() *learnerData {
	return &learnerData{
		mastery:  make(map[string]models.MasteryState),
		interval: make(map[string]models.IntervalState),
	}
}

// Memory keeps all state in process memory. It is safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	learners     map[string]*learnerData
	historyLimit int
}

// NewMemory returns an empty store that retains at most historyLimit events per learner
// (DefaultHistoryLimit when historyLimit <= 0).
func NewMemory(historyLimit int) *Memory {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Memory{
		learners:     make(map[string]*learnerData),
		historyLimit: historyLimit,
	}
}

func (m *Memory) GetMasteryState(_ context.Context, learnerID, component string) (models.MasteryState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.learners[learnerID]; ok {
		if s, ok := d.mastery[component]; ok {
			return s, nil
		}
	}
	return models.MasteryState{}, ErrNotFound
}

func (m *Memory) GetIntervalState(_ context.Context, learnerID, cardID string) (models.IntervalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.learners[learnerID]; ok {
		if s, ok := d.interval[cardID]; ok {
			return s, nil
		}
	}
	return models.IntervalState{}, ErrNotFound
}

func (m *Memory) MasteryStates(_ context.Context, learnerID string) (map[string]models.MasteryState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.MasteryState)
	if d, ok := m.learners[learnerID]; ok {
		for k, v := range d.mastery {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) IntervalStates(_ context.Context, learnerID string) (map[string]models.IntervalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.IntervalState)
	if d, ok := m.learners[learnerID]; ok {
		for k, v := range d.interval {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) History(_ context.Context, learnerID string) ([]models.ReviewEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.learners[learnerID]
	if !ok {
		return nil, nil
	}
	out := make([]models.ReviewEvent, len(d.history))
	copy(out, d.history)
	return out, nil
}

// Update stages fn's writes and applies them under the store lock only if fn succeeds.
func (m *Memory) Update(ctx context.Context, learnerID string, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		base:     m.learners[learnerID],
		learner:  learnerID,
		mastery:  make(map[string]models.MasteryState),
		interval: make(map[string]models.IntervalState),
		limit:    m.historyLimit,
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	d, ok := m.learners[learnerID]
	if !ok {
		d = newLearnerData()
		m.learners[learnerID] = d
	}
	for k, v := range tx.mastery {
		d.mastery[k] = v
	}
	for k, v := range tx.interval {
		d.interval[k] = v
	}
	d.history = appendCapped(d.history, tx.events, m.historyLimit)
	return nil
}

func (m *Memory) DeleteLearner(_ context.Context, learnerID string) error {
	m.mu.Lock()
	delete(m.learners, learnerID)
	m.mu.Unlock()
	return nil
}

// memTx reads through to the committed data and buffers writes until commit.
// It runs while the store's write lock is held, so it must not call back into Memory.
type memTx struct {
	base     *learnerData
	learner  string
	mastery  map[string]models.MasteryState
	interval map[string]models.IntervalState
	events   []models.ReviewEvent
	limit    int
}

func (t *memTx) check(learnerID string) error {
	if learnerID != t.learner {
		return fmt.Errorf("transaction for learner %q cannot access learner %q", t.learner, learnerID)
	}
	return nil
}

func (t *memTx) GetMasteryState(_ context.Context, learnerID, component string) (models.MasteryState, error) {
	if err := t.check(learnerID); err != nil {
		return models.MasteryState{}, err
	}
	if s, ok := t.mastery[component]; ok {
		return s, nil
	}
	if t.base != nil {
		if s, ok := t.base.mastery[component]; ok {
			return s, nil
		}
	}
	return models.MasteryState{}, ErrNotFound
}

func (t *memTx) GetIntervalState(_ context.Context, learnerID, cardID string) (models.IntervalState, error) {
	if err := t.check(learnerID); err != nil {
		return models.IntervalState{}, err
	}
	if s, ok := t.interval[cardID]; ok {
		return s, nil
	}
	if t.base != nil {
		if s, ok := t.base.interval[cardID]; ok {
			return s, nil
		}
	}
	return models.IntervalState{}, ErrNotFound
}

func (t *memTx) MasteryStates(_ context.Context, learnerID string) (map[string]models.MasteryState, error) {
	if err := t.check(learnerID); err != nil {
		return nil, err
	}
	out := make(map[string]models.MasteryState)
	if t.base != nil {
		for k, v := range t.base.mastery {
			out[k] = v
		}
	}
	for k, v := range t.mastery {
		out[k] = v
	}
	return out, nil
}

func (t *memTx) IntervalStates(_ context.Context, learnerID string) (map[string]models.IntervalState, error) {
	if err := t.check(learnerID); err != nil {
		return nil, err
	}
	out := make(map[string]models.IntervalState)
	if t.base != nil {
		for k, v := range t.base.interval {
			out[k] = v
		}
	}
	for k, v := range t.interval {
		out[k] = v
	}
	return out, nil
}

func (t *memTx) History(_ context.Context, learnerID string) ([]models.ReviewEvent, error) {
	if err := t.check(learnerID); err != nil {
		return nil, err
	}
	var committed []models.ReviewEvent
	if t.base != nil {
		committed = t.base.history
	}
	return appendCapped(append([]models.ReviewEvent(nil), committed...), t.events, t.limit), nil
}

func (t *memTx) SetMasteryState(_ context.Context, learnerID, component string, s models.MasteryState) error {
	if err := t.check(learnerID); err != nil {
		return err
	}
	t.mastery[component] = s
	return nil
}

func (t *memTx) SetIntervalState(_ context.Context, learnerID, cardID string, s models.IntervalState) error {
	if err := t.check(learnerID); err != nil {
		return err
	}
	t.interval[cardID] = s
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, learnerID string, ev models.ReviewEvent) error {
	if err := t.check(learnerID); err != nil {
		return err
	}
	t.events = append(t.events, ev)
	return nil
}

// appendCapped appends events to history and drops the oldest entries beyond limit.
func appendCapped(history, events []models.ReviewEvent, limit int) []models.ReviewEvent {
	history = append(history, events...)
	if limit > 0 && len(history) > limit {
		trimmed := make([]models.ReviewEvent, limit)
		copy(trimmed, history[len(history)-limit:])
		history = trimmed
	}
	return history
}
