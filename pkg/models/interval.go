package models

// IntervalState tracks a learner's SM-2 schedule for a single card.
// A card without an IntervalState has never been reviewed.
type IntervalState struct {
	Interval    int     `json:"interval" db:"interval"`       // Current interval in days
	Repetitions int     `json:"repetitions" db:"repetitions"` // Consecutive successful reviews
	EaseFactor  float64 `json:"ease_factor" db:"ease_factor"` // SM-2 EF parameter
	DueDate     Date    `json:"due_date" db:"due_date"`
	Lapses      int     `json:"lapses" db:"lapses"` // Number of failed reviews
}
