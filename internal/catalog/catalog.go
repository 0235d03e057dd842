// Package catalog holds the finite, static set of cards a session is built from.
package catalog

import (
	"errors"
	"fmt"

	"github.com/example/cardsched/pkg/models"
)

var (
	// ErrDuplicateCard is returned when two cards share an id.
	ErrDuplicateCard = errors.New("catalog: duplicate card id")
	// ErrInvalidCard is returned for a card without an id or component.
	ErrInvalidCard = errors.New("catalog: invalid card")
)

// Catalog is an immutable, ordered set of cards.
type Catalog struct {
	cards []models.Card
	byID  map[string]int
}

// New validates cards and builds a catalog preserving their order.
func New(cards []models.Card) (*Catalog, error) {
	c := &Catalog{
		cards: make([]models.Card, len(cards)),
		byID:  make(map[string]int, len(cards)),
	}
	copy(c.cards, cards)
	for i, card := range c.cards {
		if card.ID == "" || card.Component == "" {
			return nil, fmt.Errorf("%w: %+v", ErrInvalidCard, card)
		}
		if _, ok := c.byID[card.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCard, card.ID)
		}
		c.byID[card.ID] = i
	}
	return c, nil
}

// FromWords expands every word into one card per type.
func FromWords(words []models.Word, types []models.CardType) (*Catalog, error) {
	if len(types) == 0 {
		types = models.DefaultCardTypes
	}
	cards := make([]models.Card, 0, len(words)*len(types))
	for _, w := range words {
		cards = append(cards, w.Cards(types)...)
	}
	return New(cards)
}

// Cards returns a copy of all cards in catalog order.
func (c *Catalog) Cards() []models.Card {
	out := make([]models.Card, len(c.cards))
	copy(out, c.cards)
	return out
}

// Card looks a card up by id.
func (c *Catalog) Card(id string) (models.Card, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Card{}, false
	}
	return c.cards[i], true
}

func (c *Catalog) Len() int { return len(c.cards) }
