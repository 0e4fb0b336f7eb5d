package service

import "errors"

var (
	// ErrInvalidTalent is returned when a talent has an empty name, a
	// non-positive progress target or negative white stars.
	ErrInvalidTalent = errors.New("invalid talent")
	// ErrNotStarted is returned by Stop when the service was never started.
	ErrNotStarted = errors.New("service not started")
)
