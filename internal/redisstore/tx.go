package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/cardsched/pkg/models"
)

// tx buffers writes over a watched snapshot; reads see the buffered values first.
type tx struct {
	reader
	mastery  map[string]models.MasteryState
	interval map[string]models.IntervalState
	events   []models.ReviewEvent
}

func newTx(r reader) *tx {
	return &tx{
		reader:   r,
		mastery:  make(map[string]models.MasteryState),
		interval: make(map[string]models.IntervalState),
	}
}

func (t *tx) check(learnerID string) error {
	if learnerID != t.learner {
		return fmt.Errorf("transaction for learner %q cannot access learner %q", t.learner, learnerID)
	}
	return nil
}

func (t *tx) empty() bool {
	return len(t.mastery) == 0 && len(t.interval) == 0 && len(t.events) == 0
}

func (t *tx) GetMasteryState(ctx context.Context, learnerID, component string) (models.MasteryState, error) {
	if err := t.check(learnerID); err != nil {
		return models.MasteryState{}, err
	}
	if s, ok := t.mastery[component]; ok {
		return s, nil
	}
	return t.reader.getMastery(ctx, component)
}

func (t *tx) GetIntervalState(ctx context.Context, learnerID, cardID string) (models.IntervalState, error) {
	if err := t.check(learnerID); err != nil {
		return models.IntervalState{}, err
	}
	if s, ok := t.interval[cardID]; ok {
		return s, nil
	}
	return t.reader.getInterval(ctx, cardID)
}

func (t *tx) MasteryStates(ctx context.Context, learnerID string) (map[string]models.MasteryState, error) {
	if err := t.check(learnerID); err != nil {
		return nil, err
	}
	out, err := t.reader.allMastery(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range t.mastery {
		out[k] = v
	}
	return out, nil
}

func (t *tx) IntervalStates(ctx context.Context, learnerID string) (map[string]models.IntervalState, error) {
	if err := t.check(learnerID); err != nil {
		return nil, err
	}
	out, err := t.reader.allIntervals(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range t.interval {
		out[k] = v
	}
	return out, nil
}

func (t *tx) History(ctx context.Context, learnerID string) ([]models.ReviewEvent, error) {
	if err := t.check(learnerID); err != nil {
		return nil, err
	}
	events, err := t.reader.history(ctx)
	if err != nil {
		return nil, err
	}
	return append(events, t.events...), nil
}

func (t *tx) SetMasteryState(_ context.Context, learnerID, component string, s models.MasteryState) error {
	if err := t.check(learnerID); err != nil {
		return err
	}
	t.mastery[component] = s
	return nil
}

func (t *tx) SetIntervalState(_ context.Context, learnerID, cardID string, s models.IntervalState) error {
	if err := t.check(learnerID); err != nil {
		return err
	}
	t.interval[cardID] = s
	return nil
}

func (t *tx) AppendHistory(_ context.Context, learnerID string, ev models.ReviewEvent) error {
	if err := t.check(learnerID); err != nil {
		return err
	}
	t.events = append(t.events, ev)
	return nil
}

// flush queues the buffered writes on pipe and trims the history to limit.
func (t *tx) flush(ctx context.Context, pipe redis.Pipeliner, limit int) error {
	for component, s := range t.mastery {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode mastery state: %w", err)
		}
		pipe.HSet(ctx, t.k.mastery, component, data)
	}
	for cardID, s := range t.interval {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode interval state: %w", err)
		}
		pipe.HSet(ctx, t.k.interval, cardID, data)
	}
	if len(t.events) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(t.events))
	for _, ev := range t.events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode review event: %w", err)
		}
		values = append(values, data)
	}
	pipe.RPush(ctx, t.k.history, values...)
	pipe.LTrim(ctx, t.k.history, int64(-limit), -1)
	return nil
}
