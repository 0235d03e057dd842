package spaced_repetition

import (
	"math"

	"github.com/example/cardsched/pkg/models"
)

const (
	// MinEase is the floor for the easiness factor
	MinEase = 1.3
	// InitialEase is the easiness factor of a card that has never been reviewed
	InitialEase = 2.5
)

// SM2 implements the SuperMemo-2 algorithm for spaced repetition
type SM2 struct {
	// Grades at or above the threshold count as a successful recall
	PassThreshold QualityResponse
	// Lower bound for the easiness factor
	MinEase float64
	// Easiness factor assigned to a new card
	InitialEase float64
	// Ease penalty applied on a lapse
	LapsePenalty float64
	// Maximum interval in days, 0 for no limit
	MaxInterval int
}

// NewSM2 создает новый экземпляр SM2 с настройками по умолчанию
func NewSM2() *SM2 {
	return &SM2{
		PassThreshold: QualityCorrectDifficult,
		MinEase:       MinEase,
		InitialEase:   InitialEase,
		LapsePenalty:  0.2,
	}
}

// QualityResponse represents the quality of response in SM-2
type QualityResponse int

const (
	// Complete blackout, unable to recall
	QualityBlackout QualityResponse = 0
	// Incorrect response but remembered upon seeing the correct answer
	QualityIncorrect QualityResponse = 1
	// Incorrect response but the correct answer felt familiar
	QualityIncorrectFamiliar QualityResponse = 2
	// Correct response but required significant effort
	QualityCorrectDifficult QualityResponse = 3
	// Correct response after some hesitation
	QualityCorrectHesitation QualityResponse = 4
	// Perfect response with no hesitation
	QualityPerfect QualityResponse = 5
)

// QualityFor maps a binary verdict onto the grade scale: correct answers are graded 4, misses 1.
func QualityFor(correct bool) QualityResponse {
	if correct {
		return QualityCorrectHesitation
	}
	return QualityIncorrect
}

// NewState returns the state of a card that is due immediately.
func (sm *SM2) NewState(today models.Date) models.IntervalState {
	return models.IntervalState{
		Interval:    0,
		Repetitions: 0,
		EaseFactor:  sm.InitialEase,
		DueDate:     today,
		Lapses:      0,
	}
}

// Review returns the state after a binary review on day today. The input is not modified.
func (sm *SM2) Review(state models.IntervalState, correct bool, today models.Date) models.IntervalState {
	return sm.ReviewQuality(state, QualityFor(correct), today)
}

// ReviewQuality returns the state after a review graded quality on day today.
func (sm *SM2) ReviewQuality(state models.IntervalState, quality QualityResponse, today models.Date) models.IntervalState {
	next := state

	if quality >= sm.PassThreshold {
		// Correct response
		switch next.Repetitions {
		case 0:
			next.Interval = 1
		case 1:
			next.Interval = 6
		default:
			next.Interval = int(math.Round(float64(next.Interval) * next.EaseFactor))
		}
		next.Repetitions++

		q := 5.0 - float64(quality)
		next.EaseFactor = math.Max(sm.MinEase, next.EaseFactor+0.1-q*(0.08+q*0.02))
	} else {
		// Lapse: start the ladder again tomorrow
		next.Repetitions = 0
		next.Interval = 1
		next.Lapses++
		next.EaseFactor = math.Max(sm.MinEase, next.EaseFactor-sm.LapsePenalty)
	}

	if sm.MaxInterval > 0 && next.Interval > sm.MaxInterval {
		next.Interval = sm.MaxInterval
	}
	if next.Interval < 0 {
		next.Interval = 0
	}

	next.DueDate = today.AddDays(next.Interval)
	return next
}

// IsDue reports whether the card should be reviewed on day today (overdue or due exactly today).
func IsDue(state models.IntervalState, today models.Date) bool {
	return !state.DueDate.After(today)
}

// IsMature determines if a card is considered learned:
// at least 5 consecutive successful reviews and an interval of 30 days or more.
func IsMature(state models.IntervalState) bool {
	return state.Repetitions >= 5 && state.Interval >= 30
}
