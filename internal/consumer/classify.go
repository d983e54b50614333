package consumer

import (
	"errors"

	"inventoryconsolidator/internal/consolidation"
	"inventoryconsolidator/internal/inventory"
)

// Class groups errors by how the worker reacts to them.
type Class int

const (
	ClassNone Class = iota
	// ClassMalformed events can never be applied; dead-letter and move on.
	ClassMalformed
	// ClassInvalidTransition events are well formed but break a record invariant.
	ClassInvalidTransition
	// ClassTransient failures are retried with backoff.
	ClassTransient
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassMalformed:
		return "malformed_event"
	case ClassInvalidTransition:
		return "invalid_state_transition"
	case ClassTransient:
		return "transient_infrastructure"
	}
	return "unknown"
}

// Classify maps an error from decoding or applying an event onto a Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, inventory.ErrMalformedEvent):
		return ClassMalformed
	case errors.Is(err, inventory.ErrInvalidTransition):
		return ClassInvalidTransition
	case errors.Is(err, consolidation.ErrStoreUnavailable):
		return ClassTransient
	}
	return ClassUnknown
}

// Reason is the dlq-reason header value.
type Reason string

const (
	ReasonMalformed         Reason = "malformed_event"
	ReasonInvalidTransition Reason = "invalid_state_transition"
	ReasonRetryExhausted    Reason = "retry_exhausted"
)

func rejectionReason(err error) Reason {
	if Classify(err) == ClassInvalidTransition {
		return ReasonInvalidTransition
	}
	return ReasonMalformed
}
