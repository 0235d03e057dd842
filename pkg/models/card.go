package models

import "fmt"

// CardType is the kind of prompt a card asks for.
type CardType string

const (
	// CardMeaning shows the characters and asks for the English meaning
	CardMeaning CardType = "meaning"
	// CardPinyin shows the characters and asks for the pinyin reading
	CardPinyin CardType = "pinyin"
)

// DefaultCardTypes are the card types generated for every word
var DefaultCardTypes = []CardType{CardMeaning, CardPinyin}

// ComponentKey identifies a knowledge component: a (category, card type) pair such as "verb:meaning".
func ComponentKey(category string, cardType CardType) string {
	return category + ":" + string(cardType)
}

// Card is a single reviewable prompt. Cards are immutable once the catalog is built.
type Card struct {
	ID        string   `json:"id" db:"id"`
	WordID    int      `json:"word_id" db:"word_id"`
	Type      CardType `json:"type" db:"type"`
	Category  string   `json:"category" db:"category"`
	Component string   `json:"component" db:"component"`
	Prompt    string   `json:"prompt" db:"prompt"`
	Answer    string   `json:"answer" db:"answer"`
}

// CardID returns the id of the card of the given type for a word.
func CardID(wordID int, cardType CardType) string {
	return fmt.Sprintf("%d_%s", wordID, cardType)
}
