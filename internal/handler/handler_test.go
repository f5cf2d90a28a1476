package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/domain/processorder"
	"github.com/roach88/orderflow/internal/eventstream"
	"github.com/roach88/orderflow/internal/logstore"
	"github.com/roach88/orderflow/internal/logstore/sqlite"
	"github.com/roach88/orderflow/internal/testutil"
	"github.com/roach88/orderflow/internal/workflow"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func streamTypes(t *testing.T, s *sqlite.Store, stream string) []string {
	t.Helper()
	var types []string
	for record, err := range s.ReadStream(context.Background(), stream) {
		require.NoError(t, err)
		types = append(types, record.Type)
	}
	return types
}

func placeO1() order.PlaceOrder {
	return order.PlaceOrder{
		OrderID:    "O1",
		FromCartID: "cart-1",
		CustomerID: "C1",
		Items:      []order.LineItem{{LineItemID: "0", ProductID: "X", Quantity: 2, UnitPrice: "9.99"}},
	}
}

func TestOrder_PlaceOnEmptyStream(t *testing.T) {
	s := openStore(t)
	h := NewOrder(s, testutil.NewFixedClock(now), nil)

	result, err := h.Handle(context.Background(), Envelope[order.Command]{
		MessageID:     "req-1",
		CorrelationID: "req-1",
		Body:          placeO1(),
	})
	require.NoError(t, err)

	require.Len(t, result.Events, 1)
	assert.IsType(t, order.OrderPlaced{}, result.Events[0])
	assert.True(t, result.Success)
	assert.Equal(t, int64(0), result.NextExpectedRevision)
	assert.Equal(t, []string{"order-placed"}, streamTypes(t, s, "order-system:order:O1"))
}

func TestOrder_InvalidCommandAppendsNothing(t *testing.T) {
	s := openStore(t)
	h := NewOrder(s, testutil.NewFixedClock(now), nil)

	result, err := h.Handle(context.Background(), Envelope[order.Command]{
		MessageID: "m-1",
		Body:      order.ConfirmOrder{OrderID: "O1"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Equal(t, int64(-1), result.NextExpectedRevision)

	streams, err := s.Streams(context.Background())
	require.NoError(t, err)
	assert.Empty(t, streams)
}

func TestOrder_EmptyBody(t *testing.T) {
	h := NewOrder(openStore(t), testutil.NewFixedClock(now), nil)

	_, err := h.Handle(context.Background(), Envelope[order.Command]{MessageID: "m"})
	assert.Error(t, err)
}

func TestOrder_StampsCausationAndCorrelation(t *testing.T) {
	s := openStore(t)
	h := NewOrder(s, testutil.NewFixedClock(now), nil)

	_, err := h.Handle(context.Background(), Envelope[order.Command]{
		MessageID:     "ev-42",
		CorrelationID: "req-7",
		Body:          placeO1(),
	})
	require.NoError(t, err)

	for record, err := range s.ReadStream(context.Background(), order.StreamName("O1")) {
		require.NoError(t, err)
		meta, err := record.MetadataMap()
		require.NoError(t, err)
		assert.Equal(t, "ev-42", meta[logstore.CausationIDKey])
		assert.Equal(t, "req-7", meta[logstore.CorrelationIDKey])
	}
}

func TestInventory_StreamFromClockYear(t *testing.T) {
	h := NewInventory(openStore(t), testutil.NewFixedClock(now), nil)

	assert.Equal(t, "inventory-system:2024", h.Stream())
}

func TestInventory_ReservationFailsForShortLine(t *testing.T) {
	s := openStore(t)
	h := NewInventory(s, testutil.NewFixedClock(now), nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, Envelope[inventory.Command]{
		MessageID: "req-1", CorrelationID: "req-1",
		Body: inventory.BulkReceiveItemsIntoInventory{Items: []inventory.StockItem{{SKU: "X", Quantity: 5}}},
	})
	require.NoError(t, err)

	result, err := h.Handle(ctx, Envelope[inventory.Command]{
		MessageID: "m-2", CorrelationID: "req-2",
		Body: inventory.BulkReserveItemsFromInventory{
			ForOrderID: "O1",
			Items:      []inventory.StockItem{{SKU: "X", Quantity: 2}, {SKU: "Y", Quantity: 1}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, inventory.BulkReserveItemsFromInventoryFailed{
		ForOrderID:                   "O1",
		FailedToReserveStockForItems: []inventory.FailedStockItem{{SKU: "Y", DesiredQuantity: 1, AvailableQuantity: 0}},
		When:                         now,
	}, result.Events[0])
	assert.Equal(t, int64(1), result.NextExpectedRevision)

	d := inventory.New(testutil.NewFixedClock(now))
	state, _, err := eventstream.ReadAndFold(ctx, s, h.Stream(), d.InitialState(), d.Evolve, inventory.Events())
	require.NoError(t, err)
	assert.Equal(t, 5, state.Available("X"), "X is not decremented")
}

func TestProcessOrder_ConfirmedLifecycle(t *testing.T) {
	s := openStore(t)
	h := NewProcessOrder(s, nil)
	ctx := context.Background()

	first, err := h.Handle(ctx, Envelope[processorder.Input]{
		MessageID: "ev-1", CorrelationID: "req-2",
		Body: order.OrderPlaced{OrderID: "O1", CustomerID: "C1", Items: placeO1().Items, When: now},
	})
	require.NoError(t, err)
	require.Len(t, first.Events, 3)
	assert.Equal(t, workflow.Began[processorder.Input, processorder.Output]{}, first.Events[0])
	assert.Equal(t, int64(2), first.NextExpectedRevision)

	second, err := h.Handle(ctx, Envelope[processorder.Input]{
		MessageID: "ev-2", CorrelationID: "req-2",
		Body: inventory.BulkReserveItemsFromInventorySucceeded{
			ForOrderID: "O1",
			Items:      []inventory.StockItem{{SKU: "X", Quantity: 2}},
			When:       now,
		},
	})
	require.NoError(t, err)
	assert.Len(t, second.Events, 3)
	assert.Equal(t, int64(5), second.NextExpectedRevision)

	assert.Equal(t, []string{
		"began",
		"received.order-placed",
		"sent.bulk-reserve-items-from-inventory",
		"received.bulk-reserve-items-from-inventory-succeeded",
		"sent.confirm-order",
		"completed",
	}, streamTypes(t, s, processorder.StreamName("req-2")))
}

func TestProcessOrder_LateInputIsOnlyReceived(t *testing.T) {
	s := openStore(t)
	h := NewProcessOrder(s, nil)
	ctx := context.Background()

	outcome := inventory.BulkReserveItemsFromInventoryFailed{ForOrderID: "O1", When: now}
	for _, body := range []processorder.Input{
		order.OrderPlaced{OrderID: "O1", When: now},
		outcome,
		outcome,
	} {
		_, err := h.Handle(ctx, Envelope[processorder.Input]{MessageID: "m", CorrelationID: "c", Body: body})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"began",
		"received.order-placed",
		"sent.bulk-reserve-items-from-inventory",
		"received.bulk-reserve-items-from-inventory-failed",
		"sent.cancel-order",
		"completed",
		"received.bulk-reserve-items-from-inventory-failed",
	}, streamTypes(t, s, processorder.StreamName("c")))
}

// racingClient lets a competing writer append between the handler's read
// and its append.
type racingClient struct {
	logstore.Client
	race func()
}

func (c *racingClient) AppendToStream(ctx context.Context, stream string, expected logstore.ExpectedRevision, events ...logstore.EventData) (logstore.AppendResult, error) {
	if c.race != nil {
		race := c.race
		c.race = nil
		race()
	}
	return c.Client.AppendToStream(ctx, stream, expected, events...)
}

func TestOrder_ConflictSurfaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	clock := testutil.NewFixedClock(now)

	_, err := NewOrder(s, clock, nil).Handle(ctx, Envelope[order.Command]{MessageID: "m-1", Body: placeO1()})
	require.NoError(t, err)

	rival := NewOrder(s, clock, nil)
	client := &racingClient{Client: s, race: func() {
		_, err := rival.Handle(ctx, Envelope[order.Command]{MessageID: "m-2", Body: order.CancelOrder{OrderID: "O1"}})
		require.NoError(t, err)
	}}

	_, err = NewOrder(client, clock, nil).Handle(ctx, Envelope[order.Command]{MessageID: "m-3", Body: order.ConfirmOrder{OrderID: "O1"}})
	require.Error(t, err)
	assert.True(t, eventstream.IsConflict(err))

	assert.Equal(t, []string{"order-placed", "order-cancelled"}, streamTypes(t, s, order.StreamName("O1")))
}
