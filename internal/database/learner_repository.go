package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/cardsched/pkg/models"
)

// ErrLearnerNotFound is returned when no learner matches the lookup
var ErrLearnerNotFound = errors.New("learner not found")

// LearnerRepository handles database operations for learners
type LearnerRepository struct {
	db *sqlx.DB
}

// NewLearnerRepository creates a new repository instance
func NewLearnerRepository(db *sqlx.DB) *LearnerRepository {
	return &LearnerRepository{db: db}
}

const learnerColumns = "id, name, chat_id, created_at"

// GetByID returns a learner by ID
func (r *LearnerRepository) GetByID(ctx context.Context, id string) (*models.Learner, error) {
	return r.getOne(ctx, "SELECT "+learnerColumns+" FROM learners WHERE id = ?", id)
}

// GetByChatID returns the learner linked to a Telegram chat
func (r *LearnerRepository) GetByChatID(ctx context.Context, chatID int64) (*models.Learner, error) {
	return r.getOne(ctx, "SELECT "+learnerColumns+" FROM learners WHERE chat_id = ?", chatID)
}

func (r *LearnerRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Learner, error) {
	var l models.Learner
	err := r.db.GetContext(ctx, &l, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLearnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learner: %w", err)
	}
	return &l, nil
}

// GetAll returns all learners
func (r *LearnerRepository) GetAll(ctx context.Context) ([]models.Learner, error) {
	var learners []models.Learner
	err := r.db.SelectContext(ctx, &learners, "SELECT "+learnerColumns+" FROM learners ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to get learners: %w", err)
	}
	return learners, nil
}

// ReminderRecipients returns learners linked to a chat
func (r *LearnerRepository) ReminderRecipients(ctx context.Context) ([]models.Learner, error) {
	var learners []models.Learner
	err := r.db.SelectContext(ctx, &learners, "SELECT "+learnerColumns+" FROM learners WHERE chat_id <> 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder recipients: %w", err)
	}
	return learners, nil
}

// Create inserts a new learner or updates name and chat if it exists
func (r *LearnerRepository) Create(ctx context.Context, l *models.Learner) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO learners (id, name, chat_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			chat_id = excluded.chat_id`),
		l.ID, l.Name, l.ChatID, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create/update learner: %w", err)
	}
	return nil
}

// Delete removes a learner with all of the learner's model state and review history
// in one transaction.
func (r *LearnerRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockLearner(ctx, tx, id); err != nil {
		return err
	}
	if err := deleteState(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM learners WHERE id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete learner: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit learner deletion: %w", err)
	}
	return nil
}
