package subscriber

import (
	"context"
	"log/slog"

	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/domain/processorder"
	"github.com/roach88/orderflow/internal/filter"
	"github.com/roach88/orderflow/internal/handler"
	"github.com/roach88/orderflow/internal/logstore"
	"github.com/roach88/orderflow/internal/workflow"
)

// Subscription names.
const (
	OrderName        = "order-subscriber"
	InventoryName    = "inventory-subscriber"
	ProcessOrderName = "process-order-subscriber"
)

func wire(m codec.Message) string { return codec.WireType(m.MessageName()) }

// OrderFilter selects the order commands the saga sends.
func OrderFilter() filter.MessageFilter {
	return filter.New(
		workflow.SentType(wire(order.ConfirmOrder{})),
		workflow.SentType(wire(order.CancelOrder{})),
	)
}

// InventoryFilter selects the reservations the saga sends.
func InventoryFilter() filter.MessageFilter {
	return filter.New(
		workflow.SentType(wire(inventory.BulkReserveItemsFromInventory{})),
	)
}

// ProcessOrderFilter selects the domain events that drive the saga.
func ProcessOrderFilter() filter.MessageFilter {
	return filter.New(
		wire(order.OrderPlaced{}),
		wire(inventory.BulkReserveItemsFromInventorySucceeded{}),
		wire(inventory.BulkReserveItemsFromInventoryFailed{}),
	)
}

// NewOrder executes saga-sent order commands.
func NewOrder(client logstore.Client, h *handler.Order, checkpointInterval int, logger *slog.Logger) (*Subscriber[order.Command], error) {
	return New(client, Config[order.Command]{
		Name:               OrderName,
		Filter:             OrderFilter(),
		CheckpointInterval: checkpointInterval,
		Decoder:            order.Commands(),
		Handle: func(ctx context.Context, env handler.Envelope[order.Command]) error {
			_, err := h.Handle(ctx, env)
			return err
		},
		Logger: logger,
	})
}

// NewInventory executes saga-sent reservations.
func NewInventory(client logstore.Client, h *handler.Inventory, checkpointInterval int, logger *slog.Logger) (*Subscriber[inventory.Command], error) {
	return New(client, Config[inventory.Command]{
		Name:               InventoryName,
		Filter:             InventoryFilter(),
		CheckpointInterval: checkpointInterval,
		Decoder:            inventory.Commands(),
		Handle: func(ctx context.Context, env handler.Envelope[inventory.Command]) error {
			_, err := h.Handle(ctx, env)
			return err
		},
		Logger: logger,
	})
}

// NewProcessOrder feeds order and inventory events to the saga.
func NewProcessOrder(client logstore.Client, h *handler.ProcessOrder, checkpointInterval int, logger *slog.Logger) (*Subscriber[processorder.Input], error) {
	return New(client, Config[processorder.Input]{
		Name:               ProcessOrderName,
		Filter:             ProcessOrderFilter(),
		CheckpointInterval: checkpointInterval,
		Decoder:            processorder.Inputs(),
		Handle: func(ctx context.Context, env handler.Envelope[processorder.Input]) error {
			_, err := h.Handle(ctx, env)
			return err
		},
		Logger: logger,
	})
}

var (
	_ Runner = (*Subscriber[order.Command])(nil)
	_ Runner = (*Subscriber[inventory.Command])(nil)
	_ Runner = (*Subscriber[processorder.Input])(nil)
)
