package models

import "time"

// Learner is a person studying the deck
type Learner struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	ChatID    int64     `json:"chat_id" db:"chat_id"` // Telegram chat, 0 when not linked
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
