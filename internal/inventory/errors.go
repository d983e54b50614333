package inventory

import "errors"

var (
	// ErrMalformedEvent means an event failed decoding or basic validation.
	ErrMalformedEvent = errors.New("malformed inventory event")

	// ErrInvalidTransition means a well-formed event would break a record
	// invariant, such as driving quantity below zero.
	ErrInvalidTransition = errors.New("invalid inventory state transition")
)
