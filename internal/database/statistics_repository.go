package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ReviewStatistics summarises a learner's retained review history
type ReviewStatistics struct {
	Total     int `db:"total"`
	Correct   int `db:"correct"`
	Overrides int `db:"overrides"`
}

// Accuracy is the share of correct answers, 0 without reviews
func (s ReviewStatistics) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// ComponentStatistics is ReviewStatistics for one component
type ComponentStatistics struct {
	Component string `db:"component"`
	ReviewStatistics
}

// StatisticsRepository answers aggregate queries over review_history
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

const statisticsColumns = `
	COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN correct THEN 1 ELSE 0 END), 0) AS correct,
	COALESCE(SUM(CASE WHEN override THEN 1 ELSE 0 END), 0) AS overrides`

// GetLearnerStatistics returns totals over the learner's history
func (r *StatisticsRepository) GetLearnerStatistics(ctx context.Context, learnerID string) (ReviewStatistics, error) {
	var stats ReviewStatistics
	err := r.db.GetContext(ctx, &stats,
		r.db.Rebind("SELECT "+statisticsColumns+" FROM review_history WHERE learner_id = ?"), learnerID)
	if err != nil {
		return ReviewStatistics{}, fmt.Errorf("failed to get statistics: %w", err)
	}
	return stats, nil
}

// GetComponentStatistics returns totals per component, most reviewed first
func (r *StatisticsRepository) GetComponentStatistics(ctx context.Context, learnerID string) ([]ComponentStatistics, error) {
	var stats []ComponentStatistics
	err := r.db.SelectContext(ctx, &stats, r.db.Rebind(`
		SELECT component, `+statisticsColumns+`
		FROM review_history
		WHERE learner_id = ?
		GROUP BY component
		ORDER BY total DESC, component`), learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get component statistics: %w", err)
	}
	return stats, nil
}
