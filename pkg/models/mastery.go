package models

// MasteryState is the BKT state of one learner for one knowledge component.
// Only PKnown changes over the state's life; the other three are per-component parameters.
type MasteryState struct {
	PKnown float64 `json:"p_known" db:"p_known"`
	PLearn float64 `json:"p_learn" db:"p_learn"`
	PGuess float64 `json:"p_guess" db:"p_guess"`
	PSlip  float64 `json:"p_slip" db:"p_slip"`
}
