package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrOpenSession   = errors.New("talent already has an open session")
	ErrSessionClosed = errors.New("session already finalized")
)
