package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/cardsched/pkg/models"
)

func TestGradeAnswer(t *testing.T) {
	meaning := models.Card{Type: models.CardMeaning, Answer: "to eat, consume"}
	pinyin := models.Card{Type: models.CardPinyin, Answer: "péngyou"}

	cases := []struct {
		name   string
		card   models.Card
		answer string
		want   bool
	}{
		{"exact", meaning, "to eat", true},
		{"without to", meaning, "eat", true},
		{"case and spaces", meaning, "  EAT  ", true},
		{"second alternative", meaning, "consume", true},
		{"trailing punctuation", meaning, "eat!", true},
		{"wrong", meaning, "drink", false},
		{"empty", meaning, "   ", false},
		{"pinyin exact", pinyin, "péngyou", true},
		{"pinyin spaced", pinyin, "Péng you", true},
		{"pinyin without tones", pinyin, "pengyou", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := GradeAnswer(tc.answer, tc.card)
			assert.Equal(t, tc.want, g.Correct)
			assert.Equal(t, tc.card.Answer, g.Hint)
		})
	}
}
