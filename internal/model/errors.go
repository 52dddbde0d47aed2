package model

import "errors"

// Error taxonomy shared by the stores, the HTTP layer and the client session.
var (
	// ErrNotParticipant is returned when the caller is not an active participant.
	ErrNotParticipant = errors.New("not a participant")
	// ErrForbidden is returned when a participant is not allowed to perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for ids that do not exist or are not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks recoverable network or server failures.
	ErrTransient = errors.New("transient failure")
)
