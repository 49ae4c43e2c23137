package domain

import "github.com/pkg/errors"

var (
	// ErrPredictionUnavailable anchor price or raw prediction could not be obtained.
	ErrPredictionUnavailable = errors.New("prediction unavailable")
	// ErrInvalidHorizon horizon outside MinHorizon..MaxHorizon.
	ErrInvalidHorizon = errors.New("invalid prediction horizon")
)
