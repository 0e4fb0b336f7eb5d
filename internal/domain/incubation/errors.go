package incubation

import "errors"

// Sentinel kinds for rejected adoptions.
var (
	ErrAlreadyIncubating = errors.New("incubation already active")
	ErrInvalidTarget     = errors.New("progress target must be positive")
	ErrMismatchedPair    = errors.New("session does not belong to talent")
	ErrSessionFinalized  = errors.New("session already finalized")
)
