// Package compose wires handlers and subscribers over one log store client.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/orderflow/internal/decider"
	"github.com/roach88/orderflow/internal/handler"
	"github.com/roach88/orderflow/internal/logstore"
	"github.com/roach88/orderflow/internal/subscriber"
)

// Options configure New. Zero values select defaults.
type Options struct {
	Clock              decider.Clock
	CheckpointInterval int
	Logger             *slog.Logger
}

// Root is the immutable dependency graph of the runtime.
type Root struct {
	Order        *handler.Order
	Inventory    *handler.Inventory
	ProcessOrder *handler.ProcessOrder

	subscribers []subscriber.Runner
	logger      *slog.Logger
}

// New builds every handler and subscriber once.
func New(client logstore.Client, opts Options) (*Root, error) {
	if client == nil {
		return nil, fmt.Errorf("compose: log store client is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = decider.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Root{
		Order:        handler.NewOrder(client, clock, logger),
		Inventory:    handler.NewInventory(client, clock, logger),
		ProcessOrder: handler.NewProcessOrder(client, logger),
		logger:       logger,
	}

	orderSub, err := subscriber.NewOrder(client, r.Order, opts.CheckpointInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	inventorySub, err := subscriber.NewInventory(client, r.Inventory, opts.CheckpointInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	processOrderSub, err := subscriber.NewProcessOrder(client, r.ProcessOrder, opts.CheckpointInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	// Settling order when pumped in sequence: commands before the events
	// that feed the saga.
	r.subscribers = []subscriber.Runner{orderSub, inventorySub, processOrderSub}
	return r, nil
}

// Subscribers returns the subscribers in their pumping order.
func (r *Root) Subscribers() []subscriber.Runner {
	return append([]subscriber.Runner(nil), r.subscribers...)
}

// Setup creates every persistent subscription that does not exist yet.
func (r *Root) Setup(ctx context.Context) error {
	for _, s := range r.subscribers {
		if err := s.CreateIfNotExists(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Consumers are the running consume loops of a Root.
type Consumers []*subscriber.Consumer

// Close stops every loop and waits for in-flight messages.
func (cs Consumers) Close() error {
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start subscribes every subscriber. If one fails, those already started
// are closed.
func (r *Root) Start(ctx context.Context) (Consumers, error) {
	var started Consumers
	for _, s := range r.subscribers {
		c, err := s.Subscribe(ctx)
		if err != nil {
			started.Close()
			return nil, err
		}
		started = append(started, c)
	}
	r.logger.InfoContext(ctx, "subscribers started", "count", len(started))
	return started, nil
}
