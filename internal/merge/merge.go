// Package merge decides how a single inventory event folds into the current
// consolidated record for its key. It is pure: no I/O, no clocks of its own.
package merge

import (
	"fmt"
	"time"

	"inventoryconsolidator/internal/inventory"
)

// Outcome classifies what an event did to its record.
type Outcome int

const (
	// Applied means the record changed.
	Applied Outcome = iota + 1
	// Duplicate means the event id was already applied; the record is unchanged.
	Duplicate
	// Stale means the sequence is not newer than the record; the record is unchanged.
	Stale
	// RejectedInvalid means the payload is malformed or would break an invariant.
	RejectedInvalid
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	case RejectedInvalid:
		return "rejected_invalid"
	}
	return "unknown"
}

// Changed reports whether the outcome must be written back.
func (o Outcome) Changed() bool { return o == Applied }

// DefaultDedupWindow is how many recent event ids a record remembers.
const DefaultDedupWindow = 32

// Options tune Apply.
type Options struct {
	// Now stamps ModifiedAt on applied records.
	Now time.Time
	// DedupWindow bounds Record.RecentEventIDs.
	DedupWindow int
}

// Result is the output of Apply. Record is the new record when Outcome is Applied
// and the unchanged current record otherwise. Err explains RejectedInvalid.
type Result struct {
	Record  inventory.Record
	Outcome Outcome
	Err     error
}

// Apply merges ev into current. found is false when no record exists for the key.
func Apply(current inventory.Record, found bool, ev inventory.Event, opts Options) Result {
	unchanged := func(o Outcome, err error) Result {
		return Result{Record: current, Outcome: o, Err: err}
	}

	if err := inventory.Validate(ev); err != nil {
		return unchanged(RejectedInvalid, err)
	}
	if found && current.Key() != ev.Key() {
		return unchanged(RejectedInvalid, fmt.Errorf("%w: event for %s applied to record %s",
			inventory.ErrMalformedEvent, ev.Key(), current.Key()))
	}
	if found && current.Seen(ev.EventID) {
		return unchanged(Duplicate, nil)
	}
	if found && ev.Sequence <= current.LastSequence {
		return unchanged(Stale, nil)
	}

	next := current.Clone()
	if !found || current.Deleted {
		next = recreate(current, found, ev)
	}

	switch ev.Type {
	case inventory.EventCreated:
		next.ProductID = ev.ProductID
		next.Name = ev.Name
		next.Quantity = *ev.Quantity
		next.UnitPrice = *ev.Price
		next.Active = true
	case inventory.EventQuantityChanged:
		qty := next.Quantity
		if ev.Quantity != nil {
			qty = *ev.Quantity
		} else {
			qty += *ev.QuantityDelta
		}
		if qty < 0 {
			return unchanged(RejectedInvalid, fmt.Errorf("%w: quantity would become %d",
				inventory.ErrInvalidTransition, qty))
		}
		next.Quantity = qty
	case inventory.EventPriceChanged:
		next.UnitPrice = *ev.Price
	case inventory.EventDeactivated:
		next.Active = false
	case inventory.EventDeleted:
		next.Deleted = true
	}

	if ev.ProductID != "" {
		next.ProductID = ev.ProductID
	}
	next.LastSequence = ev.Sequence
	next.LastEventAt = ev.OccurredAt
	next.ModifiedAt = opts.Now
	window := opts.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	next.RememberEvent(ev.EventID, window)

	return Result{Record: next, Outcome: Applied}
}

// recreate builds the base for a new or previously tombstoned key. Sequence
// bookkeeping survives a tombstone so the key never accepts an older event.
func recreate(current inventory.Record, found bool, ev inventory.Event) inventory.Record {
	base := inventory.Record{
		StoreID:   ev.StoreID,
		SKU:       ev.SKU,
		ProductID: ev.ProductID,
		Active:    true,
	}
	if found {
		base.LastSequence = current.LastSequence
		base.RecentEventIDs = current.Clone().RecentEventIDs
	}
	return base
}
