package bkt

import "github.com/example/cardsched/pkg/models"

// Model holds the BKT parameters in force: global defaults plus per-component overrides.
type Model struct {
	defaults  models.MasteryState
	overrides map[string]Overrides
}

// NewModel returns a model with the given defaults (clamped) and optional per-component overrides.
func NewModel(defaults models.MasteryState, overrides map[string]Overrides) *Model {
	m := &Model{
		defaults:  Clamp(defaults),
		overrides: make(map[string]Overrides, len(overrides)),
	}
	for k, o := range overrides {
		m.overrides[k] = o
	}
	return m
}

// DefaultModel uses Defaults for every component.
func DefaultModel() *Model {
	return NewModel(Defaults, nil)
}

// Create returns the initial state for a component that has no stored state yet.
func (m *Model) Create(component string) models.MasteryState {
	return Create(m.defaults, m.overrides[component])
}

// StateOr returns s when present, otherwise the component's initial state.
func (m *Model) StateOr(component string, s models.MasteryState, ok bool) models.MasteryState {
	if ok {
		return s
	}
	return m.Create(component)
}
