// Package processorder is the order fulfilment saga: an order placement
// triggers a stock reservation, whose outcome confirms or cancels the order.
package processorder

import (
	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/workflow"
)

// StreamName is the stream of one saga instance. Every message of one
// business transaction shares the correlation id, so a replayed input lands
// on the same instance.
func StreamName(correlationID string) string {
	return "order-system:process-order:" + correlationID
}

// Input is order.OrderPlaced, inventory.BulkReserveItemsFromInventorySucceeded
// or inventory.BulkReserveItemsFromInventoryFailed.
type Input = codec.Message

// Output is inventory.BulkReserveItemsFromInventory, order.ConfirmOrder or
// order.CancelOrder.
type Output = codec.Message

// Event is a lifecycle event of the saga.
type Event = workflow.Event[Input, Output]

// Inputs is the codec for saga inputs.
func Inputs() *codec.JSON[Input] {
	return codec.NewJSON[Input](
		order.OrderPlaced{},
		inventory.BulkReserveItemsFromInventorySucceeded{},
		inventory.BulkReserveItemsFromInventoryFailed{},
	)
}

// Outputs is the codec for saga outputs.
func Outputs() *codec.JSON[Output] {
	return codec.NewJSON[Output](
		inventory.BulkReserveItemsFromInventory{},
		order.ConfirmOrder{},
		order.CancelOrder{},
	)
}

// Events is the codec for the saga's own stream.
func Events() *workflow.Encoder[Input, Output] {
	return workflow.NewEncoder[Input, Output](Inputs(), Outputs())
}

// State is Initially, Placed, Reserved or Cancelled.
type State interface {
	processOrderState()
}

type Initially struct{}
type Placed struct{}
type Reserved struct{}
type Cancelled struct{}

func (Initially) processOrderState() {}
func (Placed) processOrderState()    {}
func (Reserved) processOrderState()  {}
func (Cancelled) processOrderState() {}

// Saga implements workflow.Saga.
type Saga struct{}

// New creates the saga body.
func New() Saga {
	return Saga{}
}

func (Saga) InitialState() State {
	return Initially{}
}

// Decide reserves stock for a fresh placement and, once placed, confirms or
// cancels on the reservation outcome. Inputs arriving in any other state
// decide nothing; completion is not guarded beyond that.
func (Saga) Decide(input Input, state State) []workflow.Command[Output] {
	commands := []workflow.Command[Output]{}
	switch state.(type) {
	case Initially:
		if placed, ok := input.(order.OrderPlaced); ok {
			items := make([]inventory.StockItem, len(placed.Items))
			for i, item := range placed.Items {
				items[i] = inventory.StockItem{SKU: item.ProductID, Quantity: item.Quantity}
			}
			commands = append(commands, workflow.Send[Output]{
				Output: inventory.BulkReserveItemsFromInventory{
					ForOrderID: placed.OrderID,
					Items:      items,
				},
			})
		}
	case Placed:
		switch in := input.(type) {
		case inventory.BulkReserveItemsFromInventorySucceeded:
			commands = append(commands,
				workflow.Send[Output]{Output: order.ConfirmOrder{OrderID: in.ForOrderID}},
				workflow.Complete[Output]{},
			)
		case inventory.BulkReserveItemsFromInventoryFailed:
			commands = append(commands,
				workflow.Send[Output]{Output: order.CancelOrder{OrderID: in.ForOrderID}},
				workflow.Complete[Output]{},
			)
		}
	}
	return commands
}

// Evolve moves only on received inputs.
func (Saga) Evolve(state State, event Event) State {
	received, ok := event.(workflow.Received[Input, Output])
	if !ok {
		return state
	}
	switch received.Input.(type) {
	case order.OrderPlaced:
		return Placed{}
	case inventory.BulkReserveItemsFromInventorySucceeded:
		return Reserved{}
	case inventory.BulkReserveItemsFromInventoryFailed:
		return Cancelled{}
	}
	return state
}

var _ workflow.Saga[Input, Output, State] = Saga{}
