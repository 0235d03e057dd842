package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/cardsched/pkg/models"
)

// WordRepository handles database operations for words
type WordRepository struct {
	db *sqlx.DB
}

// NewWordRepository creates a new repository instance
func NewWordRepository(db *sqlx.DB) *WordRepository {
	return &WordRepository{db: db}
}

// GetAll returns all words in id order
func (r *WordRepository) GetAll(ctx context.Context) ([]models.Word, error) {
	var words []models.Word
	err := r.db.SelectContext(ctx, &words, "SELECT id, hanzi, pinyin, english, category, created_at FROM words ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get words: %w", err)
	}
	return words, nil
}

// GetByCategory returns words of one category
func (r *WordRepository) GetByCategory(ctx context.Context, category string) ([]models.Word, error) {
	var words []models.Word
	err := r.db.SelectContext(ctx, &words,
		r.db.Rebind("SELECT id, hanzi, pinyin, english, category, created_at FROM words WHERE category = ? ORDER BY id"), category)
	if err != nil {
		return nil, fmt.Errorf("failed to get words by category: %w", err)
	}
	return words, nil
}

// UpsertWord inserts the word or updates the existing row with the same id.
// A word without an id gets the next free one. Reports whether a row was created.
func (r *WordRepository) UpsertWord(word *models.Word) (bool, error) {
	ctx := context.Background()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if word.ID == 0 {
		var next int
		if err := tx.GetContext(ctx, &next, "SELECT COALESCE(MAX(id), 0) + 1 FROM words"); err != nil {
			return false, fmt.Errorf("failed to allocate word ID: %w", err)
		}
		word.ID = next
	}

	var exists int
	err = tx.GetContext(ctx, &exists, tx.Rebind("SELECT 1 FROM words WHERE id = ?"), word.ID)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, fmt.Errorf("failed to look up word: %w", err)
	}

	if created {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO words (id, hanzi, pinyin, english, category, created_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`),
			word.ID, word.Hanzi, word.Pinyin, word.English, word.Category)
	} else {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE words SET hanzi = ?, pinyin = ?, english = ?, category = ? WHERE id = ?`),
			word.Hanzi, word.Pinyin, word.English, word.Category, word.ID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to save word: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to save word: %w", err)
	}
	return created, nil
}

// Delete removes a word
func (r *WordRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM words WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete word: %w", err)
	}
	return nil
}

// Count returns the number of stored words
func (r *WordRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM words"); err != nil {
		return 0, fmt.Errorf("failed to count words: %w", err)
	}
	return n, nil
}
