package bkt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cardsched/pkg/models"
)

func ptr(v float64) *float64 { return &v }

func TestUpdateWorkedExample(t *testing.T) {
	s := models.MasteryState{PKnown: 0.10, PGuess: 0.15, PSlip: 0.10, PLearn: 0.20}
	next := Update(s, true)
	// evidence = 0.9*0.1 + 0.15*0.9 = 0.225; posterior = 0.4; 0.4 + 0.6*0.2 = 0.52
	assert.InDelta(t, 0.52, next.PKnown, 1e-9)
	assert.Equal(t, 0.10, s.PKnown, "input must not be modified")
	assert.Equal(t, s.PLearn, next.PLearn)
	assert.Equal(t, s.PGuess, next.PGuess)
	assert.Equal(t, s.PSlip, next.PSlip)
}

func TestUpdateIncorrect(t *testing.T) {
	s := models.MasteryState{PKnown: 0.5, PGuess: 0.2, PSlip: 0.1, PLearn: 0.1}
	next := Update(s, false)
	// evidence = 0.1*0.5 + 0.8*0.5 = 0.45; posterior = 0.05/0.45
	posterior := 0.05 / 0.45
	assert.InDelta(t, posterior+(1-posterior)*0.1, next.PKnown, 1e-9)
	assert.Less(t, next.PKnown, s.PKnown)
}

func TestUpdateDegenerateEvidence(t *testing.T) {
	s := models.MasteryState{PKnown: 0, PGuess: 0, PSlip: 0.1, PLearn: 0.2}
	next := Update(s, true)
	// No evidence: posterior stays at the prior, only the learning transition applies.
	assert.InDelta(t, 0.2, next.PKnown, 1e-9)

	s = models.MasteryState{PKnown: 1, PGuess: 0.2, PSlip: 0, PLearn: 0}
	next = Update(s, false)
	assert.Equal(t, 1.0, next.PKnown)
}

func TestUpdateStaysInRange(t *testing.T) {
	grid := []float64{0, 0.01, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99, 1}
	for _, pk := range grid {
		for _, pl := range grid {
			for _, pg := range grid {
				for _, ps := range grid {
					s := models.MasteryState{PKnown: pk, PLearn: pl, PGuess: pg, PSlip: ps}
					for _, correct := range []bool{true, false} {
						got := Update(s, correct).PKnown
						require.GreaterOrEqual(t, got, 0.0, "%+v correct=%v", s, correct)
						require.LessOrEqual(t, got, 1.0, "%+v correct=%v", s, correct)
					}
				}
			}
		}
	}
}

func TestRepeatedCorrectConverges(t *testing.T) {
	s := Defaults
	prev := s.PKnown
	for i := 0; i < 30; i++ {
		s = Update(s, true)
		assert.GreaterOrEqual(t, s.PKnown, prev)
		prev = s.PKnown
	}
	assert.Greater(t, s.PKnown, 0.95)
	assert.LessOrEqual(t, s.PKnown, 1.0)
}

func TestCreateClampsOverrides(t *testing.T) {
	s := Create(Defaults, Overrides{PKnown: ptr(1.7), PGuess: ptr(-0.3)})
	assert.Equal(t, 1.0, s.PKnown)
	assert.Equal(t, 0.0, s.PGuess)
	assert.Equal(t, Defaults.PLearn, s.PLearn)
	assert.Equal(t, Defaults.PSlip, s.PSlip)
}

func TestModelPerComponentOverrides(t *testing.T) {
	m := NewModel(Defaults, map[string]Overrides{
		"verb:pinyin": {PGuess: ptr(0.05)},
	})
	assert.Equal(t, Defaults, m.Create("noun:meaning"))
	assert.Equal(t, 0.05, m.Create("verb:pinyin").PGuess)
}

func TestSelectionPriority(t *testing.T) {
	assert.InDelta(t, 0.9, SelectionPriority(models.MasteryState{PKnown: 0.1}), 1e-12)
	assert.Equal(t, 0.0, SelectionPriority(models.MasteryState{PKnown: 1}))
}

func TestLabel(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0.0, LabelNew},
		{0.24, LabelNew},
		{0.25, LabelWeak},
		{0.5, LabelLearning},
		{0.8, LabelStrong},
		{0.95, LabelMastered},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Label(tt.p), "p=%v", tt.p)
	}
}
