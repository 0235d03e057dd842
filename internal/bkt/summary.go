package bkt

import (
	"sort"

	"github.com/example/cardsched/pkg/models"
)

// ComponentSummary is one row of the per-component progress report.
type ComponentSummary struct {
	Component string          `json:"component"`
	Category  string          `json:"category"`
	CardType  models.CardType `json:"card_type"`
	PKnown    float64         `json:"p_known"`
	Label     string          `json:"label"`
	Cards     int             `json:"cards"`
}

// CategoryMastery is the mean mastery of a category across its card types.
type CategoryMastery struct {
	Category string  `json:"category"`
	Mastery  float64 `json:"mastery"`
}

// OverallMastery is the arithmetic mean of pKnown over states; 0 for none.
func OverallMastery(states []models.MasteryState) float64 {
	if len(states) == 0 {
		return 0
	}
	var total float64
	for _, s := range states {
		total += s.PKnown
	}
	return total / float64(len(states))
}

// MasteryByComponent averages pKnown over the given component keys, using the model's
// initial state for components the learner has not touched.
func (m *Model) MasteryByComponent(states map[string]models.MasteryState, keys []string) float64 {
	if len(keys) == 0 {
		return 0
	}
	subset := make([]models.MasteryState, 0, len(keys))
	for _, k := range keys {
		s, ok := states[k]
		subset = append(subset, m.StateOr(k, s, ok))
	}
	return OverallMastery(subset)
}

// Summary reports every component that occurs in cards, weakest first.
func (m *Model) Summary(cards []models.Card, states map[string]models.MasteryState) []ComponentSummary {
	index := make(map[string]int)
	var rows []ComponentSummary
	for _, c := range cards {
		if i, ok := index[c.Component]; ok {
			rows[i].Cards++
			continue
		}
		s, ok := states[c.Component]
		s = m.StateOr(c.Component, s, ok)
		index[c.Component] = len(rows)
		rows = append(rows, ComponentSummary{
			Component: c.Component,
			Category:  c.Category,
			CardType:  c.Type,
			PKnown:    s.PKnown,
			Label:     Label(s.PKnown),
			Cards:     1,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PKnown != rows[j].PKnown {
			return rows[i].PKnown < rows[j].PKnown
		}
		return rows[i].Component < rows[j].Component
	})
	return rows
}

// ByCategory folds a summary into per-category means, weakest first.
func ByCategory(rows []ComponentSummary) []CategoryMastery {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var order []string
	for _, r := range rows {
		if _, ok := counts[r.Category]; !ok {
			order = append(order, r.Category)
		}
		sums[r.Category] += r.PKnown
		counts[r.Category]++
	}

	out := make([]CategoryMastery, 0, len(order))
	for _, c := range order {
		out = append(out, CategoryMastery{Category: c, Mastery: sums[c] / float64(counts[c])})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mastery != out[j].Mastery {
			return out[i].Mastery < out[j].Mastery
		}
		return out[i].Category < out[j].Category
	})
	return out
}
