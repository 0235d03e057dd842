package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/cardsched/internal/bkt"
	"github.com/example/cardsched/internal/catalog"
	"github.com/example/cardsched/internal/clock"
	"github.com/example/cardsched/internal/metrics"
	"github.com/example/cardsched/internal/spaced_repetition"
	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

// Defaults for session construction
const (
	DefaultNewCardsPerSession = 20
	DefaultMaxSessionSize     = 60
	DefaultStride             = 4
	DefaultEpsilon            = 0.05
)

// ErrInvalidConfig is returned for a queue configuration outside its allowed range.
var ErrInvalidConfig = errors.New("scheduler: invalid config")

// Config controls how a session queue is assembled.
type Config struct {
	// Maximum number of never-seen cards per queue
	NewCardsPerSession int
	// Hard cap on the queue length
	MaxSessionSize int
	// Number of due cards emitted before each new card
	Stride int
	// Cards whose priorities differ by less than Epsilon are shuffled among themselves
	Epsilon float64
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		NewCardsPerSession: DefaultNewCardsPerSession,
		MaxSessionSize:     DefaultMaxSessionSize,
		Stride:             DefaultStride,
		Epsilon:            DefaultEpsilon,
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	switch {
	case c.NewCardsPerSession < 0:
		return fmt.Errorf("%w: new cards per session %d < 0", ErrInvalidConfig, c.NewCardsPerSession)
	case c.MaxSessionSize < 0:
		return fmt.Errorf("%w: max session size %d < 0", ErrInvalidConfig, c.MaxSessionSize)
	case c.Stride < 1:
		return fmt.Errorf("%w: stride %d < 1", ErrInvalidConfig, c.Stride)
	case c.Epsilon < 0 || math.IsNaN(c.Epsilon):
		return fmt.Errorf("%w: epsilon %v < 0", ErrInvalidConfig, c.Epsilon)
	}
	return nil
}

// Queue is an ordered session of card ids.
type Queue struct {
	IDs []string
	Due int // due cards included
	New int // new cards included
}

// Empty reports that no session is available.
func (q Queue) Empty() bool { return len(q.IDs) == 0 }

// Stats are the dashboard counts for a learner.
type Stats struct {
	DueCount int `json:"due_count"`
	NewCount int `json:"new_count"`
	Total    int `json:"total"`
}

// Progress is the mastery report for a learner.
type Progress struct {
	Overall    float64                `json:"overall"`
	Mature     int                    `json:"mature"` // cards with a long, stable interval
	Components []bkt.ComponentSummary `json:"components"`
	Categories []bkt.CategoryMastery  `json:"categories"`
}

// Scheduler builds ranked review queues from the catalog and the two models' state.
type Scheduler struct {
	catalog *catalog.Catalog
	store   store.Reader
	mastery *bkt.Model
	clock   clock.Clock
	config  Config
	logger  *zap.Logger

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithRand sets the shuffle source used for near-equal priorities.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rnd = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler returns a scheduler over cat, reading state from st.
func NewScheduler(cat *catalog.Catalog, st store.Reader, mastery *bkt.Model, clk clock.Clock, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mastery == nil {
		mastery = bkt.DefaultModel()
	}
	s := &Scheduler{
		catalog: cat,
		store:   st,
		mastery: mastery,
		clock:   clk,
		config:  cfg,
		logger:  zap.NewNop(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Partition splits the catalog into due and new cards for the learner, in catalog order.
// Cards scheduled for a later day are counted in future only.
func (s *Scheduler) Partition(ctx context.Context, learnerID string) (due, fresh []models.Card, future int) {
	intervals, err := s.store.IntervalStates(ctx, learnerID)
	if err != nil {
		// A failed read is treated as absent state.
		metrics.StoreErrors.WithLabelValues("interval_states").Inc()
		s.logger.Warn("failed to load interval states, treating cards as new",
			zap.String("learner", learnerID), zap.Error(err))
		intervals = nil
	}

	today := s.clock.Today()
	for _, card := range s.catalog.Cards() {
		state, ok := intervals[card.ID]
		switch {
		case !ok:
			fresh = append(fresh, card)
		case spaced_repetition.IsDue(state, today):
			due = append(due, card)
		default:
			future++
		}
	}
	return due, fresh, future
}

// BuildQueue assembles the learner's session: due and new cards ranked by weakest
// component mastery, new cards capped, interleaved and truncated to the session size.
func (s *Scheduler) BuildQueue(ctx context.Context, learnerID string) (Queue, error) {
	if err := ctx.Err(); err != nil {
		return Queue{}, err
	}

	due, fresh, _ := s.Partition(ctx, learnerID)
	if len(due) == 0 && len(fresh) == 0 {
		metrics.QueueSize.Observe(0)
		return Queue{}, nil
	}

	states, err := s.store.MasteryStates(ctx, learnerID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("mastery_states").Inc()
		s.logger.Warn("failed to load mastery states, using priors",
			zap.String("learner", learnerID), zap.Error(err))
		states = nil
	}
	score := func(c models.Card) float64 {
		st, ok := states[c.Component]
		return bkt.SelectionPriority(s.mastery.StateOr(c.Component, st, ok))
	}

	orderedDue := s.rank(due, score)
	orderedNew := s.rank(fresh, score)
	if len(orderedNew) > s.config.NewCardsPerSession {
		orderedNew = orderedNew[:s.config.NewCardsPerSession]
	}

	merged := interleave(orderedDue, orderedNew, s.config.Stride)
	if len(merged) > s.config.MaxSessionSize {
		merged = merged[:s.config.MaxSessionSize]
	}

	q := Queue{IDs: make([]string, 0, len(merged))}
	isNew := make(map[string]bool, len(orderedNew))
	for _, c := range orderedNew {
		isNew[c.ID] = true
	}
	for _, c := range merged {
		q.IDs = append(q.IDs, c.ID)
		if isNew[c.ID] {
			q.New++
		} else {
			q.Due++
		}
	}

	metrics.QueueSize.Observe(float64(len(q.IDs)))
	s.logger.Debug("built session queue",
		zap.String("learner", learnerID),
		zap.Int("due", q.Due), zap.Int("new", q.New), zap.Int("queue", len(q.IDs)))
	return q, nil
}

// NextCard returns the head of a freshly built queue; false when nothing is available.
func (s *Scheduler) NextCard(ctx context.Context, learnerID string) (models.Card, bool, error) {
	q, err := s.BuildQueue(ctx, learnerID)
	if err != nil || q.Empty() {
		return models.Card{}, false, err
	}
	card, ok := s.catalog.Card(q.IDs[0])
	return card, ok, nil
}

// SessionStats counts due and new cards without ranking them.
func (s *Scheduler) SessionStats(ctx context.Context, learnerID string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	due, fresh, _ := s.Partition(ctx, learnerID)
	return Stats{DueCount: len(due), NewCount: len(fresh), Total: s.catalog.Len()}, nil
}

// Progress reports mastery per component and category for the catalog.
func (s *Scheduler) Progress(ctx context.Context, learnerID string) (Progress, error) {
	states, err := s.store.MasteryStates(ctx, learnerID)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to load mastery states: %w", err)
	}
	rows := s.mastery.Summary(s.catalog.Cards(), states)

	p := Progress{Components: rows, Categories: bkt.ByCategory(rows)}
	intervals, err := s.store.IntervalStates(ctx, learnerID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("interval_states").Inc()
		s.logger.Warn("failed to load interval states, reporting no mature cards",
			zap.String("learner", learnerID), zap.Error(err))
	}
	for _, card := range s.catalog.Cards() {
		if state, ok := intervals[card.ID]; ok && spaced_repetition.IsMature(state) {
			p.Mature++
		}
	}
	var total float64
	for _, r := range rows {
		total += r.PKnown
	}
	if len(rows) > 0 {
		p.Overall = total / float64(len(rows))
	}
	return p, nil
}

// rank sorts cards by priority, highest first, then shuffles runs of near-equal priority.
func (s *Scheduler) rank(cards []models.Card, score func(models.Card) float64) []models.Card {
	type scored struct {
		card  models.Card
		score float64
	}
	items := make([]scored, len(cards))
	for i, c := range cards {
		items[i] = scored{card: c, score: score(c)}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(items); {
		j := i + 1
		for j < len(items) && math.Abs(items[j].score-items[i].score) < s.config.Epsilon {
			j++
		}
		if j-i > 1 && s.rnd != nil {
			tier := items[i:j]
			s.rnd.Shuffle(len(tier), func(a, b int) { tier[a], tier[b] = tier[b], tier[a] })
		}
		i = j
	}

	out := make([]models.Card, len(items))
	for i, it := range items {
		out[i] = it.card
	}
	return out
}

// interleave emits stride items of due, then one of fresh, until one runs out,
// then appends the rest of the other.
func interleave(due, fresh []models.Card, stride int) []models.Card {
	out := make([]models.Card, 0, len(due)+len(fresh))
	di, fi := 0, 0
	for di < len(due) && fi < len(fresh) {
		for k := 0; k < stride && di < len(due); k++ {
			out = append(out, due[di])
			di++
		}
		out = append(out, fresh[fi])
		fi++
	}
	out = append(out, due[di:]...)
	out = append(out, fresh[fi:]...)
	return out
}
