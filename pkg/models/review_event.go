package models

import "time"

// ReviewEvent is one entry of a learner's append-only review history
type ReviewEvent struct {
	ID        string    `json:"id" db:"id"`
	CardID    string    `json:"card_id" db:"card_id"`
	Component string    `json:"component" db:"component"`
	Correct   bool      `json:"correct" db:"correct"`
	Override  bool      `json:"override" db:"override"` // Corrective re-record of an earlier miss
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
