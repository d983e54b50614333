package inventory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Encode serializes an event into its wire form.
func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("inventory: encode event %s: %w", e.EventID, err)
	}
	return b, nil
}

// Decode parses and validates the wire form of an event. Every failure wraps
// ErrMalformedEvent.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := Validate(e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks field presence and the payload required by the event type.
func Validate(e Event) error {
	if err := validatorInstance().Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, e.Type)
	}
	if e.Price != nil && e.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrMalformedEvent)
	}
	switch e.Type {
	case EventCreated:
		if e.Quantity == nil || e.Price == nil {
			return fmt.Errorf("%w: CREATED requires quantity and price", ErrMalformedEvent)
		}
		if e.QuantityDelta != nil {
			return fmt.Errorf("%w: CREATED does not accept quantity_delta", ErrMalformedEvent)
		}
	case EventQuantityChanged:
		if (e.Quantity == nil) == (e.QuantityDelta == nil) {
			return fmt.Errorf("%w: QUANTITY_CHANGED requires exactly one of quantity and quantity_delta", ErrMalformedEvent)
		}
	case EventPriceChanged:
		if e.Price == nil {
			return fmt.Errorf("%w: PRICE_CHANGED requires price", ErrMalformedEvent)
		}
	}
	return nil
}
