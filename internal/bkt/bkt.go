// Package bkt implements Bayesian Knowledge Tracing: a per-component estimate of the
// probability that a learner has mastered a knowledge component, updated from observed
// answer correctness.
package bkt

import (
	"math"

	"github.com/example/cardsched/pkg/models"
)

// Defaults are conservative priors for a learner who has not seen a component yet.
var Defaults = models.MasteryState{
	PKnown: 0.10,
	PLearn: 0.20,
	PGuess: 0.15,
	PSlip:  0.10,
}

// Overrides replaces individual parameters; nil fields keep the base value.
type Overrides struct {
	PKnown *float64
	PLearn *float64
	PGuess *float64
	PSlip  *float64
}

// Create merges overrides into base. Every probability is clamped to [0, 1].
func Create(base models.MasteryState, o Overrides) models.MasteryState {
	s := base
	if o.PKnown != nil {
		s.PKnown = *o.PKnown
	}
	if o.PLearn != nil {
		s.PLearn = *o.PLearn
	}
	if o.PGuess != nil {
		s.PGuess = *o.PGuess
	}
	if o.PSlip != nil {
		s.PSlip = *o.PSlip
	}
	return Clamp(s)
}

// Clamp forces all four probabilities into [0, 1]; NaN becomes 0.
func Clamp(s models.MasteryState) models.MasteryState {
	s.PKnown = clamp01(s.PKnown)
	s.PLearn = clamp01(s.PLearn)
	s.PGuess = clamp01(s.PGuess)
	s.PSlip = clamp01(s.PSlip)
	return s
}

// Update applies one observation and returns the new state. The input is not modified.
//
// The posterior P(known | evidence) is computed with Bayes' rule, then the learning
// transition P(known') = posterior + (1 - posterior) * pLearn is applied. When the
// evidence has zero probability the posterior is taken to be the prior; the learning
// transition still applies, so pKnown moves up by (1 - pKnown) * pLearn.
func Update(s models.MasteryState, correct bool) models.MasteryState {
	next := s

	var evidence, joint float64
	if correct {
		joint = (1 - s.PSlip) * s.PKnown
		evidence = joint + s.PGuess*(1-s.PKnown)
	} else {
		joint = s.PSlip * s.PKnown
		evidence = joint + (1-s.PGuess)*(1-s.PKnown)
	}

	posterior := s.PKnown
	if evidence > 0 {
		posterior = joint / evidence
	}

	next.PKnown = clamp01(posterior + (1-posterior)*s.PLearn)
	return next
}

// SelectionPriority is 1 - pKnown: the weaker the mastery, the higher the priority.
func SelectionPriority(s models.MasteryState) float64 {
	return 1 - s.PKnown
}

// Mastery labels used for progress display
const (
	LabelMastered = "mastered"
	LabelStrong   = "strong"
	LabelLearning = "learning"
	LabelWeak     = "weak"
	LabelNew      = "new"
)

// Label buckets a mastery probability for display.
func Label(pKnown float64) string {
	switch {
	case pKnown >= 0.95:
		return LabelMastered
	case pKnown >= 0.75:
		return LabelStrong
	case pKnown >= 0.50:
		return LabelLearning
	case pKnown >= 0.25:
		return LabelWeak
	default:
		return LabelNew
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
