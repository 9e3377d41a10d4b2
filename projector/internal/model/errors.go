package model

import (
	"errors"
	"fmt"
)

// ErrTooFewSeasons is wrapped by the validation error for single-season
// histories; the random walk and AR priors need at least two seasons.
var ErrTooFewSeasons = errors.New("needs ≥2 seasons")

// InferenceFailure reports a sampler error or a non-converged fit.
type InferenceFailure struct {
	Player string
	Season string
	Op     string
	Err    error
}

func (e *InferenceFailure) Error() string {
	return fmt.Sprintf("inference failed for %s (season %s, %s): %v", e.Player, e.Season, e.Op, e.Err)
}

func (e *InferenceFailure) Unwrap() error { return e.Err }
