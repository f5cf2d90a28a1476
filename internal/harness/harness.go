package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/roach88/orderflow/internal/compose"
	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/handler"
	"github.com/roach88/orderflow/internal/logstore"
	"github.com/roach88/orderflow/internal/logstore/sqlite"
	"github.com/roach88/orderflow/internal/subscriber"
	"github.com/roach88/orderflow/internal/testutil"
)

// maxPumpRounds bounds the settling loop after each step. Every round
// delivers at least one record, so a scenario that needs more is a feedback
// loop between subscribers.
const maxPumpRounds = 100

// Harness executes scenario steps against one composed runtime.
type Harness struct {
	store *sqlite.Store
	root  *compose.Root
	ids   *testutil.SequenceIDs
	subs  []pumped
}

type pumped struct {
	runner subscriber.Runner
	sub    logstore.PersistentSubscription
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and compose the runtime on a fixed clock
// 2. Open every persistent subscription
// 3. Execute each step, then pump subscriptions until nothing is delivered
// 4. Collect the log and parked messages
// 5. Evaluate expectations
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	now, err := scenario.ClockTime()
	if err != nil {
		return nil, err
	}

	st, err := sqlite.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	root, err := compose.New(st, compose.Options{
		Clock:              testutil.NewFixedClock(now),
		CheckpointInterval: 1,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	})
	if err != nil {
		return nil, err
	}

	h := &Harness{store: st, root: root, ids: testutil.NewSequenceIDs("req")}
	defer h.close()
	if err := h.open(ctx); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if err := h.settle(ctx); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result := NewResult()
	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) open(ctx context.Context) error {
	for _, r := range h.root.Subscribers() {
		sub, err := r.Open(ctx)
		if err != nil {
			return err
		}
		h.subs = append(h.subs, pumped{runner: r, sub: sub})
	}
	return nil
}

func (h *Harness) close() {
	for _, p := range h.subs {
		p.sub.Close()
	}
}

// execute sends one step through its handler. The request id is both the
// message id and the correlation id, as at the HTTP boundary.
func (h *Harness) execute(ctx context.Context, step Step) error {
	id := h.ids.Next()
	switch {
	case step.Receive != nil:
		items := make([]inventory.StockItem, len(step.Receive.Items))
		for i, item := range step.Receive.Items {
			items[i] = inventory.StockItem{SKU: item.SKU, Quantity: item.Quantity}
		}
		_, err := h.root.Inventory.Handle(ctx, handler.Envelope[inventory.Command]{
			MessageID:     id,
			CorrelationID: id,
			Body:          inventory.BulkReceiveItemsIntoInventory{Items: items},
		})
		return err

	case step.PlaceOrder != nil:
		p := step.PlaceOrder
		items := make([]order.LineItem, len(p.Items))
		for i, item := range p.Items {
			items[i] = order.LineItem{
				LineItemID: strconv.Itoa(i),
				ProductID:  item.ProductID,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
			}
		}
		_, err := h.root.Order.Handle(ctx, handler.Envelope[order.Command]{
			MessageID:     id,
			CorrelationID: id,
			Body: order.PlaceOrder{
				OrderID:    p.OrderID,
				FromCartID: p.FromCartID,
				CustomerID: p.CustomerID,
				Items:      items,
			},
		})
		return err
	}
	return fmt.Errorf("empty step")
}

// settle drains the subscriptions in composition order, round after round,
// until a whole round delivers nothing.
func (h *Harness) settle(ctx context.Context) error {
	for round := 0; round < maxPumpRounds; round++ {
		delivered := 0
		for _, p := range h.subs {
			n, err := p.runner.Drain(ctx, p.sub)
			if err != nil {
				return err
			}
			delivered += n
		}
		if delivered == 0 {
			return nil
		}
	}
	return fmt.Errorf("subscriptions did not settle after %d rounds", maxPumpRounds)
}

// collect reads the whole log in append order and every parked message.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	streams, err := h.store.Streams(ctx)
	if err != nil {
		return err
	}
	for _, info := range streams {
		for record, err := range h.store.ReadStream(ctx, info.Name) {
			if err != nil {
				return err
			}
			rec := Record{
				Position: record.Position,
				Stream:   record.StreamID,
				Revision: record.Revision,
				Type:     record.Type,
				Data:     string(record.Data),
			}
			if meta, err := record.MetadataMap(); err == nil {
				rec.CorrelationID, _ = meta[logstore.CorrelationIDKey].(string)
			}
			result.Records = append(result.Records, rec)
		}
	}
	slices.SortFunc(result.Records, func(a, b Record) int {
		return cmp.Compare(a.Position, b.Position)
	})

	for _, p := range h.subs {
		parked, err := h.store.ListParked(ctx, p.runner.Name())
		if err != nil {
			return err
		}
		for _, pm := range parked {
			result.Parked = append(result.Parked, Parked{
				Subscription: pm.Subscription,
				Stream:       pm.StreamID,
				Type:         pm.Type,
				Reason:       pm.Reason,
			})
		}
	}
	return nil
}
