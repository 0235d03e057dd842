// Package clock supplies the current calendar day to the scheduling core.
package clock

import (
	"sync"
	"time"

	"github.com/example/cardsched/pkg/models"
)

// Clock returns the current calendar day
type Clock interface {
	Today() models.Date
}

// System reads the wall clock in a fixed location.
type System struct {
	Location *time.Location
}

// NewSystem returns a wall clock for loc; nil means UTC.
func NewSystem(loc *time.Location) System {
	if loc == nil {
		loc = time.UTC
	}
	return System{Location: loc}
}

func (s System) Today() models.Date {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return models.DateOf(time.Now().In(loc))
}

// Fixed is a settable clock for tests and replays.
type Fixed struct {
	mu  sync.Mutex
	day models.Date
}

func NewFixed(day models.Date) *Fixed {
	return &Fixed{day: day}
}

func (f *Fixed) Today() models.Date {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.day
}

// Set moves the clock to day.
func (f *Fixed) Set(day models.Date) {
	f.mu.Lock()
	f.day = day
	f.mu.Unlock()
}

// Advance moves the clock forward by n days.
func (f *Fixed) Advance(n int) {
	f.mu.Lock()
	f.day = f.day.AddDays(n)
	f.mu.Unlock()
}
