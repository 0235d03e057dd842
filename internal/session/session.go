// Package session drives one study sitting: show a card, take the answer, offer an
// override after a miss, move on, until the scheduler runs dry or the limit is hit.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/cardsched/pkg/models"
)

// DefaultLimit is the number of answers after which a session ends.
const DefaultLimit = 40

var (
	// ErrWrongPhase is returned when an action does not fit the session's current step.
	ErrWrongPhase = errors.New("session: action not allowed now")
	// ErrNothingToOverride is returned when the last answer was correct or already overridden.
	ErrNothingToOverride = errors.New("session: nothing to override")
)

// NextCarder picks the learner's next card.
type NextCarder interface {
	NextCard(ctx context.Context, learnerID string) (models.Card, bool, error)
}

// Recorder persists answers.
type Recorder interface {
	RecordReview(ctx context.Context, learnerID, cardID string, correct bool) error
	OverrideToCorrect(ctx context.Context, learnerID, cardID string) error
}

// Phase is the step a session is in.
type Phase int

const (
	// PhaseInput waits for an answer to the current card.
	PhaseInput Phase = iota
	// PhaseResult shows the verdict; Override and Next are allowed.
	PhaseResult
	// PhaseDone means no more cards in this session.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseResult:
		return "result"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Session is one learner's sitting. It is safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	learnerID string
	limit     int
	next      NextCarder
	recorder  Recorder

	phase       Phase
	current     models.Card
	lastCorrect bool
	overridden  bool
	answered    int
	correct     int
}

// Start opens a session and draws its first card. A limit <= 0 means DefaultLimit.
func Start(ctx context.Context, learnerID string, next NextCarder, rec Recorder, limit int) (*Session, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Session{learnerID: learnerID, limit: limit, next: next, recorder: rec}
	if err := s.advance(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// LearnerID returns the learner studying.
func (s *Session) LearnerID() string { return s.learnerID }

// Current returns the card on screen; false once the session is done.
func (s *Session) Current() (models.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseDone {
		return models.Card{}, false
	}
	return s.current, true
}

// Phase returns the current step.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Answer records the graded answer to the current card and shows the result.
// The answer is persisted before the phase changes; on error the card can be answered again.
func (s *Session) Answer(ctx context.Context, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInput {
		return fmt.Errorf("%w: answer in phase %s", ErrWrongPhase, s.phase)
	}
	if err := s.recorder.RecordReview(ctx, s.learnerID, s.current.ID, correct); err != nil {
		return err
	}
	s.answered++
	if correct {
		s.correct++
	}
	s.lastCorrect = correct
	s.overridden = false
	s.phase = PhaseResult
	return nil
}

// Override marks the last, incorrect answer as correct. Allowed once per answer.
func (s *Session) Override(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseResult {
		return fmt.Errorf("%w: override in phase %s", ErrWrongPhase, s.phase)
	}
	if s.lastCorrect || s.overridden {
		return ErrNothingToOverride
	}
	if err := s.recorder.OverrideToCorrect(ctx, s.learnerID, s.current.ID); err != nil {
		return err
	}
	s.overridden = true
	s.lastCorrect = true
	s.correct++
	return nil
}

// Next leaves the result step and draws the following card.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseResult {
		return fmt.Errorf("%w: next in phase %s", ErrWrongPhase, s.phase)
	}
	return s.advance(ctx)
}

// LastCorrect reports the verdict on screen, including an override.
func (s *Session) LastCorrect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCorrect
}

// Done reports whether the session has ended.
func (s *Session) Done() bool {
	return s.Phase() == PhaseDone
}

// Answered is the number of cards answered so far.
func (s *Session) Answered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered
}

// Correct is the number of correct answers, overrides included.
func (s *Session) Correct() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correct
}

// Accuracy is Correct/Answered, 0 before the first answer.
func (s *Session) Accuracy() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answered == 0 {
		return 0
	}
	return float64(s.correct) / float64(s.answered)
}

// advance must be called with mu held.
func (s *Session) advance(ctx context.Context) error {
	if s.answered >= s.limit {
		s.phase = PhaseDone
		return nil
	}
	card, ok, err := s.next.NextCard(ctx, s.learnerID)
	if err != nil {
		return fmt.Errorf("failed to pick next card: %w", err)
	}
	if !ok {
		s.phase = PhaseDone
		return nil
	}
	s.current = card
	s.phase = PhaseInput
	return nil
}
