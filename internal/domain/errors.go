package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionExists   = errors.New("session already exists")

	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrEmptyTitle      = errors.New("session title is empty")
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrConfiguration marks missing credentials or setup for the text model.
	// It fails the attempted turn, never the process.
	ErrConfiguration = errors.New("generation not configured")

	// ErrMalformedResponse marks structured output that does not parse
	// against its expected shape.
	ErrMalformedResponse = errors.New("malformed structured response")
)

// TransportError is returned when a generation stream fails before it
// completes.
type TransportError struct {
	PersonaID PersonaID
	Err       error
}

func (e *TransportError) Error() string {
	if e.PersonaID == "" {
		return fmt.Sprintf("generation stream failed: %v", e.Err)
	}
	return fmt.Sprintf("generation stream for %s failed: %v", e.PersonaID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
