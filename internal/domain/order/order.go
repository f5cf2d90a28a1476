// Package order is the order lifecycle: placed once, then confirmed or
// cancelled.
package order

import (
	"github.com/roach88/orderflow/internal/decider"
)

// StreamName is the stream holding one order's history.
func StreamName(orderID string) string {
	return "order-system:order:" + orderID
}

// State is Initially, OncePlaced, Confirmed or GotCancelled.
type State interface {
	orderState()
}

type Initially struct{}

type OncePlaced struct {
	Customer string
	Items    []LineItem
}

type Confirmed struct{}

type GotCancelled struct{}

func (Initially) orderState()    {}
func (OncePlaced) orderState()   {}
func (Confirmed) orderState()    {}
func (GotCancelled) orderState() {}

// Decider implements decider.Decider for orders.
type Decider struct {
	clock decider.Clock
}

// New creates an order decider stamping events with clock.
func New(clock decider.Clock) *Decider {
	return &Decider{clock: clock}
}

func (d *Decider) InitialState() State {
	return Initially{}
}

func (d *Decider) Evolve(state State, event Event) State {
	switch e := event.(type) {
	case OrderPlaced:
		return OncePlaced{Customer: e.CustomerID, Items: e.Items}
	case OrderConfirmed:
		return Confirmed{}
	case OrderCancelled:
		return GotCancelled{}
	}
	return state
}

// Decide accepts PlaceOrder only in Initially, and ConfirmOrder or
// CancelOrder only once placed. Anything else yields no events.
func (d *Decider) Decide(command Command, state State) []Event {
	events := []Event{}
	switch s := state.(type) {
	case Initially:
		if c, ok := command.(PlaceOrder); ok {
			events = append(events, OrderPlaced{
				OrderID:    c.OrderID,
				FromCartID: c.FromCartID,
				CustomerID: c.CustomerID,
				Items:      c.Items,
				When:       d.clock.Now(),
			})
		}
	case OncePlaced:
		switch c := command.(type) {
		case ConfirmOrder:
			events = append(events, OrderConfirmed{
				OrderID:    c.OrderID,
				CustomerID: s.Customer,
				Items:      s.Items,
				When:       d.clock.Now(),
			})
		case CancelOrder:
			events = append(events, OrderCancelled{
				OrderID:    c.OrderID,
				CustomerID: s.Customer,
				When:       d.clock.Now(),
			})
		}
	}
	return events
}

var _ decider.Decider[Command, Event, State] = (*Decider)(nil)
