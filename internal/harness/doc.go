// Package harness runs order-processing scenarios end to end against an
// in-memory log store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: reserve_and_confirm
//	description: "Stock on hand: the order is confirmed"
//	clock: 2024-03-01T10:00:00Z
//	steps:
//	  - receive:
//	      items:
//	        - { sku: X, quantity: 10 }
//	  - place_order:
//	      order_id: O1
//	      from_cart_id: cart-1
//	      customer_id: C1
//	      items:
//	        - { product_id: X, quantity: 2, unitPrice: "9.99" }
//	expect:
//	  streams:
//	    order-system:order:O1: [order-placed, order-confirmed]
//	  parked: 0
//	golden: true
//
// Each step is sent through the same handler the HTTP API uses, with request
// ids req-1, req-2, ... in step order. After every step all persistent
// subscriptions are pumped in turn until a full round delivers nothing, so
// the saga runs to rest before the next step.
//
// # Determinism
//
// The clock is fixed at the scenario's clock and request ids are sequential,
// so stream names, payloads and their order are identical across runs. Event
// ids are random and are left out of snapshots.
//
// # Golden Snapshots
//
// Scenarios with golden: true compare the whole log, one record per line in
// append order, against testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
