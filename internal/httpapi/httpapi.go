// Package httpapi accepts order and inventory commands over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/eventstream"
	"github.com/roach88/orderflow/internal/handler"
)

// Headers read or written by the API.
const (
	RequestIDHeader            = "X-Request-Id"
	NextExpectedVersionHeader  = "X-ES-NextExpectedVersion"
	maxBodyBytes         int64 = 1 << 20
)

// OrderHandler executes order commands.
type OrderHandler interface {
	Handle(ctx context.Context, env handler.Envelope[order.Command]) (handler.Result[order.Event], error)
}

// InventoryHandler executes inventory commands.
type InventoryHandler interface {
	Handle(ctx context.Context, env handler.Envelope[inventory.Command]) (handler.Result[inventory.Event], error)
}

// Server routes requests to the command handlers.
type Server struct {
	orders    OrderHandler
	inventory InventoryHandler
	logger    *slog.Logger
	newID     func() (string, error)
}

// New creates a Server. A nil logger uses slog.Default().
func New(orders OrderHandler, inv InventoryHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orders:    orders,
		inventory: inv,
		logger:    logger.With("component", "httpapi"),
		newID:     func() (string, error) { return nanoid.New() },
	}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders/{id}/place", s.handlePlaceOrder)
	mux.HandleFunc("POST /inventory/bulk-receive", s.handleBulkReceive)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withRequestID(mux)
}

type requestIDKey struct{}

// withRequestID assigns every request an id, taken from X-Request-Id when
// the caller sent one, and echoes it on the response.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			generated, err := s.newID()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "could not assign request id")
				return
			}
			id = generated
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		s.logger.DebugContext(r.Context(), "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", id,
			"duration", time.Since(start),
		)
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

type placeOrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type placeOrderInput struct {
	FromCartID string           `json:"from_cart_id"`
	CustomerID string           `json:"customer_id"`
	Items      []placeOrderItem `json:"items"`
}

func (in placeOrderInput) validate() error {
	if in.FromCartID == "" {
		return errors.New("from_cart_id is required")
	}
	if in.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if in.Items == nil {
		return errors.New("items is required")
	}
	for i, item := range in.Items {
		if item.ProductID == "" {
			return fmt.Errorf("items[%d]: product_id is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive", i)
		}
	}
	return nil
}

// handlePlaceOrder handles POST /orders/{id}/place.
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	var in placeOrderInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cmd := order.PlaceOrder{
		OrderID:    orderID,
		FromCartID: in.FromCartID,
		CustomerID: in.CustomerID,
		Items:      make([]order.LineItem, len(in.Items)),
	}
	for i, item := range in.Items {
		cmd.Items[i] = order.LineItem{
			LineItemID: strconv.Itoa(i),
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		}
	}

	id := requestID(r)
	result, err := s.orders.Handle(r.Context(), handler.Envelope[order.Command]{
		MessageID:     id,
		CorrelationID: id,
		Body:          cmd,
	})
	if err != nil {
		s.fail(w, r, err, fmt.Sprintf("Could not place order %s", orderID))
		return
	}
	writeEvents(w, result.Events, result.NextExpectedRevision)
}

type bulkReceiveInput struct {
	Items []inventory.StockItem `json:"items"`
}

func (in bulkReceiveInput) validate() error {
	if in.Items == nil {
		return errors.New("items is required")
	}
	for i, item := range in.Items {
		if item.SKU == "" {
			return fmt.Errorf("items[%d]: sku is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive", i)
		}
	}
	return nil
}

// handleBulkReceive handles POST /inventory/bulk-receive.
func (s *Server) handleBulkReceive(w http.ResponseWriter, r *http.Request) {
	var in bulkReceiveInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := requestID(r)
	result, err := s.inventory.Handle(r.Context(), handler.Envelope[inventory.Command]{
		MessageID:     id,
		CorrelationID: id,
		Body:          inventory.BulkReceiveItemsIntoInventory{Items: in.Items},
	})
	if err != nil {
		s.fail(w, r, err, "Could not bulk receive into inventory")
		return
	}
	writeEvents(w, result.Events, result.NextExpectedRevision)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps a handler error to a response: conflicts are 409 with a plain
// text message, anything else is a 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, conflictMessage string) {
	if eventstream.IsConflict(err) {
		s.logger.InfoContext(r.Context(), "command rejected by concurrent write",
			"path", r.URL.Path,
			"request_id", requestID(r),
			"error", err,
		)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(conflictMessage))
		return
	}
	s.logger.ErrorContext(r.Context(), "command failed",
		"path", r.URL.Path,
		"request_id", requestID(r),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeEvents renders the appended events in their stored, tagged form.
func writeEvents[E codec.Message](w http.ResponseWriter, events []E, next int64) {
	body := make([]json.RawMessage, 0, len(events))
	for _, e := range events {
		data, err := codec.MarshalTagged(e)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		body = append(body, data)
	}
	w.Header().Set(NextExpectedVersionHeader, strconv.FormatInt(next, 10))
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
