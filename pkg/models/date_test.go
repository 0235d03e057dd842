package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.February, 28)
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, 15, d.DaysUntil(d.AddDays(15)))
	assert.Equal(t, d, DateOf(time.Date(2024, 2, 28, 23, 59, 0, 0, time.FixedZone("x", 8*3600))))
}

func TestDateEncoding(t *testing.T) {
	d := NewDate(2025, time.June, 15)

	b, err := json.Marshal(IntervalState{DueDate: d, EaseFactor: 2.5})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"due_date":"2025-06-15"`)

	var got IntervalState
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, d, got.DueDate)

	var scanned Date
	require.NoError(t, scanned.Scan([]byte("2025-06-15")))
	assert.Equal(t, d, scanned)

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", v)

	_, err = ParseDate("15/06/2025")
	assert.Error(t, err)
}

func TestWordCards(t *testing.T) {
	w := Word{ID: 7, Hanzi: "吃", Pinyin: "chī", English: "eat", Category: "verb"}
	cards := w.Cards(DefaultCardTypes)
	require.Len(t, cards, 2)
	assert.Equal(t, "7_meaning", cards[0].ID)
	assert.Equal(t, "verb:meaning", cards[0].Component)
	assert.Equal(t, "eat", cards[0].Answer)
	assert.Equal(t, "7_pinyin", cards[1].ID)
	assert.Equal(t, "chī", cards[1].Answer)
}
