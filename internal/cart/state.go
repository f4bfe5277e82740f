package cart

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateNone     State = "none"
	StateActive   State = "active"
	StateDisabled State = "disabled"
)

type Event string

const (
	// EventOpen is GetOrCreate: create, reactivate, or keep an active cart.
	EventOpen Event = "open"
	// EventDisable retires an active cart, after its items are gone.
	EventDisable Event = "disable"
)

var transitions = map[State]map[Event]State{
	StateNone:     {EventOpen: StateActive},
	StateActive:   {EventOpen: StateActive, EventDisable: StateDisabled},
	StateDisabled: {EventOpen: StateActive},
}

// Next returns the state reached from "from" on ev.
func Next(from State, ev Event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("cart: no transition from %s on %s", from, ev)
	}
	return to, nil
}

// StateOf reports the state of a stored cart; nil means the user has none.
func StateOf(c *Cart) State {
	switch {
	case c == nil:
		return StateNone
	case c.Enabled:
		return StateActive
	default:
		return StateDisabled
	}
}

// open applies EventOpen. existing is nil when the user has no cart yet.
// A disabled cart comes back with its identity and no items.
func open(existing *Cart, userID int, now time.Time) (Cart, bool, error) {
	from := StateOf(existing)
	if _, err := Next(from, EventOpen); err != nil {
		return Cart{}, false, err
	}
	switch from {
	case StateActive:
		return *existing, false, nil
	case StateDisabled:
		c := existing.clone()
		c.Enabled = true
		c.Items = []Item{}
		c.TotalPrice = decimal.Zero
		c.UpdatedAt = now
		return c, true, nil
	default:
		return Cart{
			ID:         uuid.New(),
			UserID:     userID,
			Enabled:    true,
			Items:      []Item{},
			TotalPrice: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, true, nil
	}
}

// disable applies EventDisable. Items must already have been dealt with.
func disable(c *Cart, now time.Time) error {
	if _, err := Next(StateOf(c), EventDisable); err != nil {
		return err
	}
	if len(c.Items) != 0 {
		return fmt.Errorf("cart %s: cannot disable with %d items", c.ID, len(c.Items))
	}
	c.Enabled = false
	c.TotalPrice = decimal.Zero
	c.UpdatedAt = now
	return nil
}
