// Package inventory tracks on-hand stock per SKU and reserves it for orders.
package inventory

import (
	"maps"
	"strconv"

	"github.com/roach88/orderflow/internal/decider"
)

// StreamName is the stream shared by all inventory movements of one year.
func StreamName(year int) string {
	return "inventory-system:" + strconv.Itoa(year)
}

// State is the on-hand quantity per SKU. Missing SKUs hold zero.
type State struct {
	Items map[string]int
}

// Available returns the on-hand quantity of sku.
func (s State) Available(sku string) int {
	return s.Items[sku]
}

// Decider implements decider.Decider for inventory.
type Decider struct {
	clock decider.Clock
}

// New creates an inventory decider stamping events with clock.
func New(clock decider.Clock) *Decider {
	return &Decider{clock: clock}
}

func (d *Decider) InitialState() State {
	return State{Items: map[string]int{}}
}

// Evolve returns a new state; the input state's map is never modified.
func (d *Decider) Evolve(state State, event Event) State {
	switch e := event.(type) {
	case BulkReceivedItemsIntoInventory:
		return adjust(state, e.Items, 1)
	case BulkReserveItemsFromInventorySucceeded:
		return adjust(state, e.Items, -1)
	}
	return state
}

func adjust(state State, items []StockItem, sign int) State {
	next := maps.Clone(state.Items)
	if next == nil {
		next = map[string]int{}
	}
	for _, item := range items {
		next[item.SKU] += sign * item.Quantity
	}
	return State{Items: next}
}

// Decide always accepts receipts. A reservation is all-or-nothing: every
// line is checked against stock, and if any is short a single failure names
// all short lines.
func (d *Decider) Decide(command Command, state State) []Event {
	events := []Event{}
	switch c := command.(type) {
	case BulkReceiveItemsIntoInventory:
		events = append(events, BulkReceivedItemsIntoInventory{
			Items: c.Items,
			When:  d.clock.Now(),
		})
	case BulkReserveItemsFromInventory:
		var failed []FailedStockItem
		for _, item := range c.Items {
			available := state.Available(item.SKU)
			if available < item.Quantity {
				failed = append(failed, FailedStockItem{
					SKU:               item.SKU,
					DesiredQuantity:   item.Quantity,
					AvailableQuantity: available,
				})
			}
		}
		if len(failed) > 0 {
			events = append(events, BulkReserveItemsFromInventoryFailed{
				ForOrderID:                   c.ForOrderID,
				FailedToReserveStockForItems: failed,
				When:                         d.clock.Now(),
			})
		} else {
			events = append(events, BulkReserveItemsFromInventorySucceeded{
				ForOrderID: c.ForOrderID,
				Items:      c.Items,
				When:       d.clock.Now(),
			})
		}
	}
	return events
}

var _ decider.Decider[Command, Event, State] = (*Decider)(nil)
