package bot

import (
	"strings"
	"unicode"

	"github.com/example/cardsched/pkg/models"
)

// Grade is the verdict on a typed answer.
type Grade struct {
	Correct bool
	// Hint is the expected answer as shown to the learner
	Hint string
}

// GradeAnswer compares a typed answer with the card's accepted answers.
// Comparison ignores case, surrounding and repeated spaces, and a leading "to " on
// meanings. Pinyin must match exactly apart from case and spacing.
func GradeAnswer(answer string, card models.Card) Grade {
	g := Grade{Hint: card.Answer}
	given := normalize(answer, card.Type)
	if given == "" {
		return g
	}
	for _, accepted := range acceptedAnswers(card.Answer) {
		if normalize(accepted, card.Type) == given {
			g.Correct = true
			break
		}
	}
	return g
}

// acceptedAnswers splits "eat, to eat; consume" into its alternatives.
func acceptedAnswers(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '/'
	})
}

func normalize(s string, t models.CardType) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if t == models.CardPinyin {
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || r == '\'' || r == '-' {
				return -1
			}
			return r
		}, s)
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimPrefix(s, "to ")
	return strings.TrimRight(s, ".!")
}
