package models

import "time"

// Word represents a vocabulary entry; every word yields one card per card type
type Word struct {
	ID        int       `json:"id" db:"id"`
	Hanzi     string    `json:"hanzi" db:"hanzi"`
	Pinyin    string    `json:"pinyin" db:"pinyin"`
	English   string    `json:"english" db:"english"`
	Category  string    `json:"category" db:"category"` // Part of speech, e.g. "verb"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Cards expands the word into one card per type.
func (w Word) Cards(types []CardType) []Card {
	cards := make([]Card, 0, len(types))
	for _, t := range types {
		answer := w.English
		if t == CardPinyin {
			answer = w.Pinyin
		}
		cards = append(cards, Card{
			ID:        CardID(w.ID, t),
			WordID:    w.ID,
			Type:      t,
			Category:  w.Category,
			Component: ComponentKey(w.Category, t),
			Prompt:    w.Hanzi,
			Answer:    answer,
		})
	}
	return cards
}
