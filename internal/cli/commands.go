package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/compose"
	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/eventstream"
	"github.com/roach88/orderflow/internal/handler"
)

// PlaceOrderOptions holds flags for the place-order command.
type PlaceOrderOptions struct {
	*RootOptions
	CustomerID string
	CartID     string
	Items      []string
	RequestID  string
}

// NewPlaceOrderCommand creates the place-order command.
func NewPlaceOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlaceOrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "place-order <order-id>",
		Short: "Place an order directly on the log",
		Long: `Place an order without going through the HTTP server.

Items are given as product:quantity:unitPrice. The order is appended to its
stream; a running server's subscribers pick it up and reserve inventory.

Exit codes:
  0 - Order placed (or already placed, in which case nothing is appended)
  1 - Rejected by a concurrent write
  2 - Command error (bad flags, database unreachable, etc.)

Example:
  orderflow place-order O1 --customer C1 --cart cart-1 --item X:2:9.99 --item Y:1:4.50`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlaceOrder(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CustomerID, "customer", "", "customer id (required)")
	cmd.Flags().StringVar(&opts.CartID, "cart", "", "cart the order is placed from (required)")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "line item as product:quantity:unitPrice (repeatable)")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "message and correlation id (generated when empty)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("cart")

	return cmd
}

func runPlaceOrder(opts *PlaceOrderOptions, orderID string, cmd *cobra.Command) error {
	items, err := parseLineItems(opts.Items)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --item", err)
	}
	requestID, err := resolveRequestID(opts.RequestID)
	if err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openNotifyingStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	root, err := compose.New(st, compose.Options{CheckpointInterval: cfg.CheckpointInterval})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build handlers", err)
	}

	result, err := root.Order.Handle(cmd.Context(), handler.Envelope[order.Command]{
		MessageID:     requestID,
		CorrelationID: requestID,
		Body: order.PlaceOrder{
			OrderID:    orderID,
			FromCartID: opts.CartID,
			CustomerID: opts.CustomerID,
			Items:      items,
		},
	})
	if err != nil {
		return handleFailure(opts.formatter(cmd), err, fmt.Sprintf("could not place order %s", orderID))
	}
	return writeAppended(opts.formatter(cmd), order.StreamName(orderID), requestID, result.Events, result.NextExpectedRevision)
}

// ReceiveOptions holds flags for the receive command.
type ReceiveOptions struct {
	*RootOptions
	Items     []string
	RequestID string
}

// NewReceiveCommand creates the receive command.
func NewReceiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReceiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive stock into this year's inventory",
		Long: `Receive stock into the inventory stream of the current year.

Items are given as sku:quantity.

Example:
  orderflow receive --item X:10 --item Y:3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "stock as sku:quantity (repeatable, at least one)")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "message and correlation id (generated when empty)")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

func runReceive(opts *ReceiveOptions, cmd *cobra.Command) error {
	items, err := parseStockItems(opts.Items)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --item", err)
	}
	requestID, err := resolveRequestID(opts.RequestID)
	if err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openNotifyingStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	root, err := compose.New(st, compose.Options{CheckpointInterval: cfg.CheckpointInterval})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build handlers", err)
	}

	result, err := root.Inventory.Handle(cmd.Context(), handler.Envelope[inventory.Command]{
		MessageID:     requestID,
		CorrelationID: requestID,
		Body:          inventory.BulkReceiveItemsIntoInventory{Items: items},
	})
	if err != nil {
		return handleFailure(opts.formatter(cmd), err, "could not bulk receive into inventory")
	}
	return writeAppended(opts.formatter(cmd), root.Inventory.Stream(), requestID, result.Events, result.NextExpectedRevision)
}

func resolveRequestID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	id, err := nanoid.New()
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to generate request id", err)
	}
	return id, nil
}

// parseLineItems parses product:quantity:unitPrice values; line ids are the
// item's position.
func parseLineItems(values []string) ([]order.LineItem, error) {
	items := make([]order.LineItem, 0, len(values))
	for i, v := range values {
		parts := strings.Split(v, ":")
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("%q: want product:quantity:unitPrice", v)
		}
		qty, err := parseQuantity(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", v, err)
		}
		items = append(items, order.LineItem{
			LineItemID: strconv.Itoa(i),
			ProductID:  parts[0],
			Quantity:   qty,
			UnitPrice:  parts[2],
		})
	}
	return items, nil
}

// parseStockItems parses sku:quantity values.
func parseStockItems(values []string) ([]inventory.StockItem, error) {
	items := make([]inventory.StockItem, 0, len(values))
	for _, v := range values {
		sku, q, ok := strings.Cut(v, ":")
		if !ok || sku == "" {
			return nil, fmt.Errorf("%q: want sku:quantity", v)
		}
		qty, err := parseQuantity(q)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", v, err)
		}
		items = append(items, inventory.StockItem{SKU: sku, Quantity: qty})
	}
	return items, nil
}

func parseQuantity(s string) (int, error) {
	qty, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("quantity %q is not a number", s)
	}
	if qty <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	return qty, nil
}

// appendedView is the JSON rendering of a handled command.
type appendedView struct {
	Stream               string            `json:"stream"`
	NextExpectedRevision int64             `json:"next_expected_revision"`
	Events               []json.RawMessage `json:"events"`
}

func writeAppended[E codec.Message](f *OutputFormatter, stream, correlationID string, events []E, next int64) error {
	view := appendedView{
		Stream:               stream,
		NextExpectedRevision: next,
		Events:               make([]json.RawMessage, 0, len(events)),
	}
	for _, e := range events {
		data, err := codec.MarshalTagged(e)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render events", err)
		}
		view.Events = append(view.Events, data)
	}

	return f.Result(view, correlationID, func(w io.Writer) {
		if len(events) == 0 {
			fmt.Fprintf(w, "Nothing to append to %s (revision %d).\n", stream, next)
			return
		}
		fmt.Fprintf(w, "Appended %d event(s) to %s, next expected revision %d\n", len(events), stream, next)
		for i, e := range events {
			fmt.Fprintf(w, "  %s %s\n", codec.WireType(e.MessageName()), view.Events[i])
		}
	})
}

// handleFailure reports a handler error: conflicts exit with ExitFailure,
// anything else with ExitCommandError.
func handleFailure(f *OutputFormatter, err error, message string) error {
	if eventstream.IsConflict(err) {
		_ = f.Error(CodeConflict, message, err.Error())
		return WrapExitError(ExitFailure, message, err)
	}
	_ = f.Error(CodeStore, message, err.Error())
	return WrapExitError(ExitCommandError, message, err)
}
