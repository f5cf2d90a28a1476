package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orderflow/internal/decider"
	"github.com/roach88/orderflow/internal/logstore"
	"github.com/roach88/orderflow/internal/testutil"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newDecider() *Decider {
	return New(testutil.NewFixedClock(now))
}

func stocked(d *Decider, items ...StockItem) State {
	return decider.Fold(d.Evolve, d.InitialState(), d.Decide(BulkReceiveItemsIntoInventory{Items: items}, d.InitialState()))
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "inventory-system:2024", StreamName(2024))
}

func TestDecide_ReceiveAlwaysSucceeds(t *testing.T) {
	d := newDecider()

	events := d.Decide(BulkReceiveItemsIntoInventory{Items: []StockItem{{SKU: "X", Quantity: 5}}}, d.InitialState())

	require.Len(t, events, 1)
	assert.Equal(t, BulkReceivedItemsIntoInventory{Items: []StockItem{{SKU: "X", Quantity: 5}}, When: now}, events[0])
}

func TestEvolve_ReceiveAccumulates(t *testing.T) {
	d := newDecider()
	state := stocked(d, StockItem{SKU: "X", Quantity: 5}, StockItem{SKU: "X", Quantity: 2}, StockItem{SKU: "Y", Quantity: 1})

	assert.Equal(t, 7, state.Available("X"))
	assert.Equal(t, 1, state.Available("Y"))
	assert.Equal(t, 0, state.Available("Z"))
}

func TestDecide_ReserveSucceeds(t *testing.T) {
	d := newDecider()
	state := stocked(d, StockItem{SKU: "X", Quantity: 5})

	request := BulkReserveItemsFromInventory{ForOrderID: "O1", Items: []StockItem{{SKU: "X", Quantity: 2}}}
	events := d.Decide(request, state)

	require.Len(t, events, 1)
	assert.Equal(t, BulkReserveItemsFromInventorySucceeded{ForOrderID: "O1", Items: request.Items, When: now}, events[0])

	next := decider.Fold(d.Evolve, state, events)
	assert.Equal(t, 3, next.Available("X"))
	assert.Equal(t, 5, state.Available("X"), "evolve must not modify the previous state")
}

func TestDecide_ReserveIsAllOrNothing(t *testing.T) {
	d := newDecider()
	state := stocked(d, StockItem{SKU: "X", Quantity: 5})

	events := d.Decide(BulkReserveItemsFromInventory{
		ForOrderID: "O1",
		Items:      []StockItem{{SKU: "X", Quantity: 2}, {SKU: "Y", Quantity: 1}},
	}, state)

	require.Len(t, events, 1)
	assert.Equal(t, BulkReserveItemsFromInventoryFailed{
		ForOrderID: "O1",
		FailedToReserveStockForItems: []FailedStockItem{
			{SKU: "Y", DesiredQuantity: 1, AvailableQuantity: 0},
		},
		When: now,
	}, events[0])

	next := decider.Fold(d.Evolve, state, events)
	assert.Equal(t, 5, next.Available("X"), "no partial reservation")
}

func TestDecide_ReserveFailureListsEveryShortLine(t *testing.T) {
	d := newDecider()
	state := stocked(d, StockItem{SKU: "X", Quantity: 1}, StockItem{SKU: "Z", Quantity: 9})

	events := d.Decide(BulkReserveItemsFromInventory{
		ForOrderID: "O2",
		Items: []StockItem{
			{SKU: "X", Quantity: 2},
			{SKU: "Z", Quantity: 3},
			{SKU: "Y", Quantity: 4},
		},
	}, state)

	require.Len(t, events, 1)
	failed, ok := events[0].(BulkReserveItemsFromInventoryFailed)
	require.True(t, ok)
	assert.Equal(t, []FailedStockItem{
		{SKU: "X", DesiredQuantity: 2, AvailableQuantity: 1},
		{SKU: "Y", DesiredQuantity: 4, AvailableQuantity: 0},
	}, failed.FailedToReserveStockForItems)
}

func TestEvolve_IgnoresFailureEvents(t *testing.T) {
	d := newDecider()
	state := stocked(d, StockItem{SKU: "X", Quantity: 1})

	next := d.Evolve(state, BulkReserveItemsFromInventoryFailed{ForOrderID: "O1"})
	assert.Equal(t, state, next)
}

func TestEvolve_NilMap(t *testing.T) {
	d := newDecider()

	next := d.Evolve(State{}, BulkReceivedItemsIntoInventory{Items: []StockItem{{SKU: "X", Quantity: 1}}})
	assert.Equal(t, 1, next.Available("X"))
}

func TestDecider_FoldMatchesIncrementalEvolve(t *testing.T) {
	d := newDecider()
	commands := []Command{
		BulkReceiveItemsIntoInventory{Items: []StockItem{{SKU: "X", Quantity: 5}}},
		BulkReserveItemsFromInventory{ForOrderID: "O1", Items: []StockItem{{SKU: "X", Quantity: 2}}},
		BulkReserveItemsFromInventory{ForOrderID: "O2", Items: []StockItem{{SKU: "X", Quantity: 4}}},
		BulkReceiveItemsIntoInventory{Items: []StockItem{{SKU: "Y", Quantity: 3}}},
		BulkReserveItemsFromInventory{ForOrderID: "O3", Items: []StockItem{{SKU: "X", Quantity: 3}, {SKU: "Y", Quantity: 3}}},
	}

	state := d.InitialState()
	var history []Event
	for _, cmd := range commands {
		events := d.Decide(cmd, state)
		state = decider.Fold(d.Evolve, state, events)
		history = append(history, events...)
	}

	assert.Equal(t, state, decider.Fold(d.Evolve, d.InitialState(), history))
	assert.Equal(t, map[string]int{"X": 0, "Y": 0}, state.Items)
}

func TestCodecs_RoundTrip(t *testing.T) {
	events := Events()
	for _, e := range []Event{
		BulkReceivedItemsIntoInventory{Items: []StockItem{{SKU: "X", Quantity: 5}}, When: now},
		BulkReserveItemsFromInventorySucceeded{ForOrderID: "O1", Items: []StockItem{{SKU: "X", Quantity: 2}}, When: now},
		BulkReserveItemsFromInventoryFailed{ForOrderID: "O1", FailedToReserveStockForItems: []FailedStockItem{{SKU: "Y", DesiredQuantity: 1}}, When: now},
	} {
		enc, err := events.Encode(e)
		require.NoError(t, err)
		got, ok := events.TryDecode(logstore.RecordedEvent{Type: enc.Type, Data: enc.Data})
		require.True(t, ok)
		assert.Equal(t, e, got)
	}

	commands := Commands()
	for _, c := range []Command{
		BulkReceiveItemsIntoInventory{Items: []StockItem{{SKU: "X", Quantity: 5}}},
		BulkReserveItemsFromInventory{ForOrderID: "O1", Items: []StockItem{{SKU: "X", Quantity: 2}}},
	} {
		enc, err := commands.Encode(c)
		require.NoError(t, err)
		got, ok := commands.TryDecode(logstore.RecordedEvent{Type: enc.Type, Data: enc.Data})
		require.True(t, ok)
		assert.Equal(t, c, got)
	}
}

func TestCodecs_WireTypes(t *testing.T) {
	assert.Equal(t, []string{
		"bulk-received-items-into-inventory",
		"bulk-reserve-items-from-inventory-succeeded",
		"bulk-reserve-items-from-inventory-failed",
	}, Events().WireTypes())
	assert.Equal(t, []string{
		"bulk-receive-items-into-inventory",
		"bulk-reserve-items-from-inventory",
	}, Commands().WireTypes())
}
