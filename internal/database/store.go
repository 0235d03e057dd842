package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

// intervalRow is an interval_states row
type intervalRow struct {
	CardID      string      `db:"card_id"`
	Interval    int         `db:"interval_days"`
	Repetitions int         `db:"repetitions"`
	EaseFactor  float64     `db:"ease_factor"`
	DueDate     models.Date `db:"due_date"`
	Lapses      int         `db:"lapses"`
}

func (r intervalRow) state() models.IntervalState {
	return models.IntervalState{
		Interval:    r.Interval,
		Repetitions: r.Repetitions,
		EaseFactor:  r.EaseFactor,
		DueDate:     r.DueDate,
		Lapses:      r.Lapses,
	}
}

// masteryRow is a mastery_states row
type masteryRow struct {
	Component string `db:"component"`
	models.MasteryState
}

// historyRow is a review_history row
type historyRow struct {
	ID         string    `db:"id"`
	CardID     string    `db:"card_id"`
	Component  string    `db:"component"`
	Correct    bool      `db:"correct"`
	Override   bool      `db:"override"`
	ReviewedAt time.Time `db:"reviewed_at"`
}

// StateStore keeps learner model state in SQL tables. Each Update runs in one
// database transaction.
type StateStore struct {
	queries
	db *sqlx.DB
}

// NewStateStore returns a store over db. historyLimit <= 0 means store.DefaultHistoryLimit.
func NewStateStore(db *sqlx.DB, historyLimit int, logger *zap.Logger) *StateStore {
	if historyLimit <= 0 {
		historyLimit = store.DefaultHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{
		queries: queries{ext: db, historyLimit: historyLimit, logger: logger},
		db:      db,
	}
}

// Update runs fn inside a transaction and commits only if fn succeeds.
func (s *StateStore) Update(ctx context.Context, learnerID string, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", store.ErrWriteFailed, err)
	}
	if err := lockLearner(ctx, tx, learnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
	}
	if err := fn(queries{ext: tx, historyLimit: s.historyLimit, logger: s.logger}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("failed to roll back", zap.String("learner", learnerID), zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %w", store.ErrWriteFailed, err)
	}
	return nil
}

// DeleteLearner removes the learner's states and history. The learner record is kept;
// LearnerRepository.Delete removes both.
func (s *StateStore) DeleteLearner(ctx context.Context, learnerID string) error {
	return s.Update(ctx, learnerID, func(tx store.Tx) error {
		return deleteState(ctx, tx.(queries).ext, learnerID)
	})
}

// stateTables hold per-learner model state, keyed by learner_id.
var stateTables = []string{"interval_states", "mastery_states", "review_history"}

func deleteState(ctx context.Context, ext sqlx.ExtContext, learnerID string) error {
	for _, table := range stateTables {
		if _, err := ext.ExecContext(ctx, ext.Rebind("DELETE FROM "+table+" WHERE learner_id = ?"), learnerID); err != nil {
			return fmt.Errorf("%w: failed to delete %s: %w", store.ErrWriteFailed, table, err)
		}
	}
	return nil
}

// lockLearner serialises postgres transactions on one learner until commit or rollback.
// SQLite runs on a single connection and needs no lock.
func lockLearner(ctx context.Context, tx *sqlx.Tx, learnerID string) error {
	if tx.DriverName() != "postgres" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", learnerID); err != nil {
		return fmt.Errorf("failed to lock learner %s: %w", learnerID, err)
	}
	return nil
}

// queries implements store.Tx over either the database or an open transaction.
type queries struct {
	ext          sqlx.ExtContext
	historyLimit int
	logger       *zap.Logger
}

func (q queries) exec(ctx context.Context, query string, args ...interface{}) error {
	if _, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...); err != nil {
		return fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
	}
	return nil
}

func (q queries) GetMasteryState(ctx context.Context, learnerID, component string) (models.MasteryState, error) {
	var row masteryRow
	err := sqlx.GetContext(ctx, q.ext, &row, q.ext.Rebind(`
		SELECT component, p_known, p_learn, p_guess, p_slip
		FROM mastery_states WHERE learner_id = ? AND component = ?`), learnerID, component)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MasteryState{}, store.ErrNotFound
	}
	if err != nil {
		return models.MasteryState{}, fmt.Errorf("failed to get mastery state: %w", err)
	}
	return row.MasteryState, nil
}

func (q queries) GetIntervalState(ctx context.Context, learnerID, cardID string) (models.IntervalState, error) {
	var row intervalRow
	err := sqlx.GetContext(ctx, q.ext, &row, q.ext.Rebind(`
		SELECT card_id, interval_days, repetitions, ease_factor, due_date, lapses
		FROM interval_states WHERE learner_id = ? AND card_id = ?`), learnerID, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.IntervalState{}, store.ErrNotFound
	}
	if err != nil {
		return models.IntervalState{}, fmt.Errorf("failed to get interval state: %w", err)
	}
	return row.state(), nil
}

func (q queries) MasteryStates(ctx context.Context, learnerID string) (map[string]models.MasteryState, error) {
	var rows []masteryRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, q.ext.Rebind(`
		SELECT component, p_known, p_learn, p_guess, p_slip
		FROM mastery_states WHERE learner_id = ?`), learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery states: %w", err)
	}
	out := make(map[string]models.MasteryState, len(rows))
	for _, r := range rows {
		out[r.Component] = r.MasteryState
	}
	return out, nil
}

func (q queries) IntervalStates(ctx context.Context, learnerID string) (map[string]models.IntervalState, error) {
	var rows []intervalRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, q.ext.Rebind(`
		SELECT card_id, interval_days, repetitions, ease_factor, due_date, lapses
		FROM interval_states WHERE learner_id = ?`), learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interval states: %w", err)
	}
	out := make(map[string]models.IntervalState, len(rows))
	for _, r := range rows {
		out[r.CardID] = r.state()
	}
	return out, nil
}

func (q queries) History(ctx context.Context, learnerID string) ([]models.ReviewEvent, error) {
	var rows []historyRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, q.ext.Rebind(`
		SELECT id, card_id, component, correct, override, reviewed_at
		FROM review_history WHERE learner_id = ? ORDER BY seq`), learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	events := make([]models.ReviewEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, models.ReviewEvent{
			ID:        r.ID,
			CardID:    r.CardID,
			Component: r.Component,
			Correct:   r.Correct,
			Override:  r.Override,
			Timestamp: r.ReviewedAt.UTC(),
		})
	}
	return events, nil
}

func (q queries) SetMasteryState(ctx context.Context, learnerID, component string, s models.MasteryState) error {
	return q.exec(ctx, `
		INSERT INTO mastery_states (learner_id, component, p_known, p_learn, p_guess, p_slip)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner_id, component) DO UPDATE SET
			p_known = excluded.p_known,
			p_learn = excluded.p_learn,
			p_guess = excluded.p_guess,
			p_slip = excluded.p_slip`,
		learnerID, component, s.PKnown, s.PLearn, s.PGuess, s.PSlip)
}

func (q queries) SetIntervalState(ctx context.Context, learnerID, cardID string, s models.IntervalState) error {
	return q.exec(ctx, `
		INSERT INTO interval_states (learner_id, card_id, interval_days, repetitions, ease_factor, due_date, lapses)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner_id, card_id) DO UPDATE SET
			interval_days = excluded.interval_days,
			repetitions = excluded.repetitions,
			ease_factor = excluded.ease_factor,
			due_date = excluded.due_date,
			lapses = excluded.lapses`,
		learnerID, cardID, s.Interval, s.Repetitions, s.EaseFactor, s.DueDate, s.Lapses)
}

// AppendHistory inserts ev and drops the learner's oldest events beyond the history limit.
func (q queries) AppendHistory(ctx context.Context, learnerID string, ev models.ReviewEvent) error {
	if err := q.exec(ctx, `
		INSERT INTO review_history (id, learner_id, card_id, component, correct, override, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, learnerID, ev.CardID, ev.Component, ev.Correct, ev.Override, ev.Timestamp.UTC()); err != nil {
		return err
	}
	return q.exec(ctx, `
		DELETE FROM review_history
		WHERE learner_id = ? AND seq NOT IN (
			SELECT seq FROM review_history WHERE learner_id = ? ORDER BY seq DESC LIMIT ?
		)`, learnerID, learnerID, q.historyLimit)
}

var _ store.Store = (*StateStore)(nil)
