package inventory

import (
	"time"

	"github.com/roach88/orderflow/internal/codec"
)

// StockItem is a quantity of one SKU.
type StockItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// FailedStockItem is a reservation line that could not be covered.
type FailedStockItem struct {
	SKU               string `json:"sku"`
	DesiredQuantity   int    `json:"desired_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
}

// Command is BulkReceiveItemsIntoInventory or BulkReserveItemsFromInventory.
type Command interface {
	codec.Message
	inventoryCommand()
}

type BulkReceiveItemsIntoInventory struct {
	Items []StockItem `json:"items"`
}

type BulkReserveItemsFromInventory struct {
	ForOrderID string      `json:"for_order_id"`
	Items      []StockItem `json:"items"`
}

func (BulkReceiveItemsIntoInventory) MessageName() string { return "BulkReceiveItemsIntoInventory" }
func (BulkReserveItemsFromInventory) MessageName() string { return "BulkReserveItemsFromInventory" }

func (BulkReceiveItemsIntoInventory) inventoryCommand() {}
func (BulkReserveItemsFromInventory) inventoryCommand() {}

// Event is BulkReceivedItemsIntoInventory,
// BulkReserveItemsFromInventorySucceeded or BulkReserveItemsFromInventoryFailed.
type Event interface {
	codec.Message
	inventoryEvent()
}

type BulkReceivedItemsIntoInventory struct {
	Items []StockItem `json:"items"`
	When  time.Time   `json:"when"`
}

type BulkReserveItemsFromInventorySucceeded struct {
	ForOrderID string      `json:"for_order_id"`
	Items      []StockItem `json:"items"`
	When       time.Time   `json:"when"`
}

type BulkReserveItemsFromInventoryFailed struct {
	ForOrderID                   string            `json:"for_order_id"`
	FailedToReserveStockForItems []FailedStockItem `json:"failed_to_reserve_stock_for_items"`
	When                         time.Time         `json:"when"`
}

func (BulkReceivedItemsIntoInventory) MessageName() string {
	return "BulkReceivedItemsIntoInventory"
}

func (BulkReserveItemsFromInventorySucceeded) MessageName() string {
	return "BulkReserveItemsFromInventorySucceeded"
}

func (BulkReserveItemsFromInventoryFailed) MessageName() string {
	return "BulkReserveItemsFromInventoryFailed"
}

func (BulkReceivedItemsIntoInventory) inventoryEvent()         {}
func (BulkReserveItemsFromInventorySucceeded) inventoryEvent() {}
func (BulkReserveItemsFromInventoryFailed) inventoryEvent()    {}

// Commands is the codec for inventory commands.
func Commands() *codec.JSON[Command] {
	return codec.NewJSON[Command](BulkReceiveItemsIntoInventory{}, BulkReserveItemsFromInventory{})
}

// Events is the codec for inventory events.
func Events() *codec.JSON[Event] {
	return codec.NewJSON[Event](
		BulkReceivedItemsIntoInventory{},
		BulkReserveItemsFromInventorySucceeded{},
		BulkReserveItemsFromInventoryFailed{},
	)
}
