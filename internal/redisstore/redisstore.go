// Package redisstore keeps learner model state in Redis.
//
// Keys, per learner:
//   - <prefix><learner>:mastery   hash of component -> JSON MasteryState
//   - <prefix><learner>:interval  hash of card id -> JSON IntervalState
//   - <prefix><learner>:history   list of JSON ReviewEvent, oldest first
//
// Update watches the three keys and commits buffered writes in one MULTI/EXEC,
// retrying when another client changed them in between.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

const (
	// DefaultPrefix namespaces all keys of the store.
	DefaultPrefix = "cardsched:"
	// maxAttempts bounds optimistic retries of one Update.
	maxAttempts = 5
)

// ErrConflict is returned when Update kept losing the race for the learner's keys.
var ErrConflict = errors.New("redisstore: too many concurrent updates")

// Store implements store.Store on a Redis client.
type Store struct {
	client       redis.UniversalClient
	prefix       string
	historyLimit int
	logger       *zap.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithHistoryLimit sets the number of events kept per learner.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:       client,
		prefix:       DefaultPrefix,
		historyLimit: store.DefaultHistoryLimit,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string, opts ...Option) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

type keys struct {
	mastery, interval, history string
}

func (s *Store) keys(learnerID string) keys {
	base := s.prefix + learnerID
	return keys{
		mastery:  base + ":mastery",
		interval: base + ":interval",
		history:  base + ":history",
	}
}

func (s *Store) reader(c commands, learnerID string) reader {
	return reader{c: c, k: s.keys(learnerID), learner: learnerID}
}

func (s *Store) GetMasteryState(ctx context.Context, learnerID, component string) (models.MasteryState, error) {
	return s.reader(s.client, learnerID).getMastery(ctx, component)
}

func (s *Store) GetIntervalState(ctx context.Context, learnerID, cardID string) (models.IntervalState, error) {
	return s.reader(s.client, learnerID).getInterval(ctx, cardID)
}

func (s *Store) MasteryStates(ctx context.Context, learnerID string) (map[string]models.MasteryState, error) {
	return s.reader(s.client, learnerID).allMastery(ctx)
}

func (s *Store) IntervalStates(ctx context.Context, learnerID string) (map[string]models.IntervalState, error) {
	return s.reader(s.client, learnerID).allIntervals(ctx)
}

func (s *Store) History(ctx context.Context, learnerID string) ([]models.ReviewEvent, error) {
	return s.reader(s.client, learnerID).history(ctx)
}

// Update runs fn against a watched snapshot and applies its writes atomically.
func (s *Store) Update(ctx context.Context, learnerID string, fn func(tx store.Tx) error) error {
	k := s.keys(learnerID)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := newTx(s.reader(rtx, learnerID))
			if fnErr = fn(t); fnErr != nil {
				return fnErr
			}
			if t.empty() {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return t.flush(ctx, pipe, s.historyLimit)
			})
			return err
		}, k.mastery, k.interval, k.history)

		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debug("redis update conflict, retrying",
				zap.String("learner", learnerID), zap.Int("attempt", attempt))
			continue
		default:
			return fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
		}
	}
	return fmt.Errorf("%w: %w", store.ErrWriteFailed, ErrConflict)
}

// DeleteLearner removes all keys of the learner.
func (s *Store) DeleteLearner(ctx context.Context, learnerID string) error {
	k := s.keys(learnerID)
	if err := s.client.Del(ctx, k.mastery, k.interval, k.history).Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)

// commands is the read subset shared by *redis.Client and *redis.Tx.
type commands interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// reader decodes state from either the client or a watched transaction.
type reader struct {
	c       commands
	k       keys
	learner string
}

func (r reader) getMastery(ctx context.Context, component string) (models.MasteryState, error) {
	var s models.MasteryState
	err := hget(ctx, r.c, r.k.mastery, component, &s)
	return s, err
}

func (r reader) getInterval(ctx context.Context, cardID string) (models.IntervalState, error) {
	var s models.IntervalState
	err := hget(ctx, r.c, r.k.interval, cardID, &s)
	return s, err
}

func (r reader) allMastery(ctx context.Context) (map[string]models.MasteryState, error) {
	raw, err := r.c.HGetAll(ctx, r.k.mastery).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery states: %w", err)
	}
	out := make(map[string]models.MasteryState, len(raw))
	for field, v := range raw {
		var s models.MasteryState
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, fmt.Errorf("failed to decode mastery state %q: %w", field, err)
		}
		out[field] = s
	}
	return out, nil
}

func (r reader) allIntervals(ctx context.Context) (map[string]models.IntervalState, error) {
	raw, err := r.c.HGetAll(ctx, r.k.interval).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get interval states: %w", err)
	}
	out := make(map[string]models.IntervalState, len(raw))
	for field, v := range raw {
		var s models.IntervalState
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, fmt.Errorf("failed to decode interval state %q: %w", field, err)
		}
		out[field] = s
	}
	return out, nil
}

func (r reader) history(ctx context.Context) ([]models.ReviewEvent, error) {
	raw, err := r.c.LRange(ctx, r.k.history, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	events := make([]models.ReviewEvent, 0, len(raw))
	for _, v := range raw {
		var ev models.ReviewEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode review event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func hget(ctx context.Context, c commands, key, field string, dst interface{}) error {
	v, err := c.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", field, err)
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", field, err)
	}
	return nil
}
