package order

import (
	"time"

	"github.com/roach88/orderflow/internal/codec"
)

// LineItem is one product line of an order.
type LineItem struct {
	LineItemID string `json:"line_item_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
}

// Command is PlaceOrder, ConfirmOrder or CancelOrder.
type Command interface {
	codec.Message
	// Target is the id of the order the command addresses.
	Target() string
	orderCommand()
}

type PlaceOrder struct {
	OrderID    string     `json:"order_id"`
	FromCartID string     `json:"from_cart_id"`
	CustomerID string     `json:"customer_id"`
	Items      []LineItem `json:"items"`
}

type ConfirmOrder struct {
	OrderID string `json:"order_id"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
}

func (PlaceOrder) MessageName() string   { return "PlaceOrder" }
func (ConfirmOrder) MessageName() string { return "ConfirmOrder" }
func (CancelOrder) MessageName() string  { return "CancelOrder" }

func (c PlaceOrder) Target() string   { return c.OrderID }
func (c ConfirmOrder) Target() string { return c.OrderID }
func (c CancelOrder) Target() string  { return c.OrderID }

func (PlaceOrder) orderCommand()   {}
func (ConfirmOrder) orderCommand() {}
func (CancelOrder) orderCommand()  {}

// Event is OrderPlaced, OrderConfirmed or OrderCancelled.
type Event interface {
	codec.Message
	orderEvent()
}

type OrderPlaced struct {
	OrderID    string     `json:"order_id"`
	FromCartID string     `json:"from_cart_id"`
	CustomerID string     `json:"customer_id"`
	Items      []LineItem `json:"items"`
	When       time.Time  `json:"when"`
}

type OrderConfirmed struct {
	OrderID    string     `json:"order_id"`
	CustomerID string     `json:"customer_id"`
	Items      []LineItem `json:"items"`
	When       time.Time  `json:"when"`
}

type OrderCancelled struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	When       time.Time `json:"when"`
}

func (OrderPlaced) MessageName() string    { return "OrderPlaced" }
func (OrderConfirmed) MessageName() string { return "OrderConfirmed" }
func (OrderCancelled) MessageName() string { return "OrderCancelled" }

func (OrderPlaced) orderEvent()    {}
func (OrderConfirmed) orderEvent() {}
func (OrderCancelled) orderEvent() {}

// Commands is the codec for order commands.
func Commands() *codec.JSON[Command] {
	return codec.NewJSON[Command](PlaceOrder{}, ConfirmOrder{}, CancelOrder{})
}

// Events is the codec for order events.
func Events() *codec.JSON[Event] {
	return codec.NewJSON[Event](OrderPlaced{}, OrderConfirmed{}, OrderCancelled{})
}
