package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/handler"
	"github.com/roach88/orderflow/internal/logstore"
	"github.com/roach88/orderflow/internal/logstore/sqlite"
	"github.com/roach88/orderflow/internal/testutil"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewFixedClock(now)
	srv := New(handler.NewOrder(s, clock, nil), handler.NewInventory(s, clock, nil), nil)
	return srv, s
}

func post(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEvents(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	return events
}

const placeBody = `{"from_cart_id":"cart-1","customer_id":"C1","items":[
	{"product_id":"X","quantity":2,"unitPrice":"9.99"},
	{"product_id":"Y","quantity":1,"unitPrice":"4.50"}]}`

func TestPlaceOrder(t *testing.T) {
	srv, s := newTestServer(t)

	rec := post(t, srv.Handler(), "/orders/O1/place", placeBody, map[string]string{RequestIDHeader: "req-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get(NextExpectedVersionHeader))
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	events := decodeEvents(t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "OrderPlaced", events[0]["_named"])
	assert.Equal(t, "O1", events[0]["order_id"])
	assert.Equal(t, "2024-03-01T10:00:00Z", events[0]["when"])

	items := events[0]["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "0", items[0].(map[string]any)["line_item_id"])
	assert.Equal(t, "1", items[1].(map[string]any)["line_item_id"])

	var records []logstore.RecordedEvent
	for record, err := range s.ReadStream(context.Background(), order.StreamName("O1")) {
		require.NoError(t, err)
		records = append(records, record)
	}
	require.Len(t, records, 1)
	meta, err := records[0].MetadataMap()
	require.NoError(t, err)
	assert.Equal(t, "req-1", meta[logstore.CausationIDKey])
	assert.Equal(t, "req-1", meta[logstore.CorrelationIDKey])
}

func TestPlaceOrder_TwiceDecidesNothing(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	require.Equal(t, http.StatusOK, post(t, h, "/orders/O1/place", placeBody, nil).Code)

	rec := post(t, h, "/orders/O1/place", placeBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeEvents(t, rec))
	assert.Equal(t, "0", rec.Header().Get(NextExpectedVersionHeader))
}

func TestPlaceOrder_GeneratesRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.newID = func() (string, error) { return "generated", nil }

	rec := post(t, srv.Handler(), "/orders/O1/place", placeBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generated", rec.Header().Get(RequestIDHeader))
}

func TestPlaceOrder_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"from_cart_id":`, "invalid JSON body"},
		{"wrong type", `{"from_cart_id":"c","customer_id":"C1","items":[{"product_id":"X","quantity":"two"}]}`, "invalid JSON body"},
		{"no customer", `{"from_cart_id":"c","items":[]}`, "customer_id is required"},
		{"no cart", `{"customer_id":"C1","items":[]}`, "from_cart_id is required"},
		{"no items", `{"from_cart_id":"c","customer_id":"C1"}`, "items is required"},
		{"no product", `{"from_cart_id":"c","customer_id":"C1","items":[{"quantity":1}]}`, "items[0]: product_id is required"},
		{"zero quantity", `{"from_cart_id":"c","customer_id":"C1","items":[{"product_id":"X","quantity":0}]}`, "items[0]: quantity must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			rec := post(t, srv.Handler(), "/orders/O1/place", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestBulkReceive(t *testing.T) {
	srv, s := newTestServer(t)
	h := srv.Handler()

	rec := post(t, h, "/inventory/bulk-receive", `{"items":[{"sku":"X","quantity":5}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get(NextExpectedVersionHeader))

	events := decodeEvents(t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "BulkReceivedItemsIntoInventory", events[0]["_named"])

	rec = post(t, h, "/inventory/bulk-receive", `{"items":[{"sku":"Y","quantity":1}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(NextExpectedVersionHeader))

	var types []string
	for record, err := range s.ReadStream(context.Background(), inventory.StreamName(2024)) {
		require.NoError(t, err)
		types = append(types, record.Type)
	}
	assert.Equal(t, []string{"bulk-received-items-into-inventory", "bulk-received-items-into-inventory"}, types)
}

func TestBulkReceive_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := post(t, h, "/inventory/bulk-receive", `{"items":[{"quantity":5}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "sku is required")

	rec = post(t, h, "/inventory/bulk-receive", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingOrders struct{ err error }

func (f failingOrders) Handle(context.Context, handler.Envelope[order.Command]) (handler.Result[order.Event], error) {
	return handler.Result[order.Event]{}, f.err
}

type failingInventory struct{ err error }

func (f failingInventory) Handle(context.Context, handler.Envelope[inventory.Command]) (handler.Result[inventory.Event], error) {
	return handler.Result[inventory.Event]{}, f.err
}

func TestConflictIs409(t *testing.T) {
	conflict := fmt.Errorf("handle req-1: %w", &logstore.WrongExpectedVersionError{
		Stream:   order.StreamName("O1"),
		Expected: logstore.NoStream,
		Actual:   0,
	})
	srv := New(failingOrders{conflict}, failingInventory{conflict}, nil)
	h := srv.Handler()

	rec := post(t, h, "/orders/O1/place", placeBody, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Could not place order O1", rec.Body.String())
	assert.Empty(t, rec.Header().Get(NextExpectedVersionHeader))

	rec = post(t, h, "/inventory/bulk-receive", `{"items":[{"sku":"X","quantity":1}]}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Could not bulk receive into inventory", rec.Body.String())
}

func TestOtherErrorIs500(t *testing.T) {
	srv := New(failingOrders{errors.New("disk on fire")}, failingInventory{errors.New("disk on fire")}, nil)

	rec := post(t, srv.Handler(), "/orders/O1/place", placeBody, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/orders/O1/place", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
