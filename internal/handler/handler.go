// Package handler runs one fold-decide-append cycle per inbound message.
//
// Each handler owns one decider or saga and knows which stream a message
// addresses. Handlers hold no mutable state; concurrent calls for the same
// stream are serialized by the store's expected-revision check, and the
// loser gets a conflict error.
package handler

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/decider"
	"github.com/roach88/orderflow/internal/domain/inventory"
	"github.com/roach88/orderflow/internal/domain/order"
	"github.com/roach88/orderflow/internal/domain/processorder"
	"github.com/roach88/orderflow/internal/eventstream"
	"github.com/roach88/orderflow/internal/logstore"
	"github.com/roach88/orderflow/internal/workflow"
)

var tracer = otel.Tracer("github.com/roach88/orderflow/internal/handler")

// Envelope carries a message with its identity. MessageID becomes the
// causation id of everything the message produces; CorrelationID threads the
// whole business transaction.
type Envelope[T any] struct {
	MessageID     string
	CorrelationID string
	Body          T
}

// Result is what one handled message appended.
type Result[E any] struct {
	Events []E
	logstore.AppendResult
}

// run is the cycle shared by all handlers: fold the stream, let decide
// produce events from the state and the revision read, append them.
func run[S, E any](
	ctx context.Context,
	client logstore.Client,
	logger *slog.Logger,
	stream string,
	messageID, correlationID string,
	initial S,
	evolve func(S, E) S,
	enc codec.Encoder[E],
	decide func(S, int64) []E,
) (_ Result[E], err error) {
	ctx, span := tracer.Start(ctx, "handler.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handle")
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("stream", stream),
		attribute.String("message.id", messageID),
		attribute.String("correlation.id", correlationID),
	)

	state, revision, err := eventstream.ReadAndFold(ctx, client, stream, initial, evolve, enc)
	if err != nil {
		return Result[E]{}, fmt.Errorf("handle %s: %w", messageID, err)
	}

	events := decide(state, revision)
	if len(events) == 0 {
		logger.DebugContext(ctx, "message decided nothing",
			"stream", stream,
			"message_id", messageID,
			"revision", revision,
		)
		return Result[E]{
			Events:       events,
			AppendResult: logstore.AppendResult{Success: true, NextExpectedRevision: revision},
		}, nil
	}

	result, err := eventstream.Append(ctx, client, stream, revision, messageID, correlationID, events, enc)
	if err != nil {
		return Result[E]{Events: events, AppendResult: result}, fmt.Errorf("handle %s: %w", messageID, err)
	}

	logger.InfoContext(ctx, "events appended",
		"stream", stream,
		"message_id", messageID,
		"correlation_id", correlationID,
		"count", len(events),
		"next_expected_revision", result.NextExpectedRevision,
	)
	return Result[E]{Events: events, AppendResult: result}, nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Order handles order commands on the addressed order's stream.
type Order struct {
	client  logstore.Client
	decider *order.Decider
	events  *codec.JSON[order.Event]
	logger  *slog.Logger
}

func NewOrder(client logstore.Client, clock decider.Clock, logger *slog.Logger) *Order {
	return &Order{
		client:  client,
		decider: order.New(clock),
		events:  order.Events(),
		logger:  loggerOrDefault(logger).With("handler", "order"),
	}
}

func (h *Order) Handle(ctx context.Context, env Envelope[order.Command]) (Result[order.Event], error) {
	if env.Body == nil {
		return Result[order.Event]{}, fmt.Errorf("handle %s: empty order command", env.MessageID)
	}
	return run(ctx, h.client, h.logger,
		order.StreamName(env.Body.Target()),
		env.MessageID, env.CorrelationID,
		h.decider.InitialState(), h.decider.Evolve, h.events,
		func(state order.State, _ int64) []order.Event {
			return h.decider.Decide(env.Body, state)
		},
	)
}

// Inventory handles inventory commands on the stream of the year the
// handler was built in.
type Inventory struct {
	client  logstore.Client
	decider *inventory.Decider
	events  *codec.JSON[inventory.Event]
	stream  string
	logger  *slog.Logger
}

func NewInventory(client logstore.Client, clock decider.Clock, logger *slog.Logger) *Inventory {
	return &Inventory{
		client:  client,
		decider: inventory.New(clock),
		events:  inventory.Events(),
		stream:  inventory.StreamName(clock.Now().Year()),
		logger:  loggerOrDefault(logger).With("handler", "inventory"),
	}
}

// Stream is the inventory stream this handler appends to.
func (h *Inventory) Stream() string { return h.stream }

func (h *Inventory) Handle(ctx context.Context, env Envelope[inventory.Command]) (Result[inventory.Event], error) {
	if env.Body == nil {
		return Result[inventory.Event]{}, fmt.Errorf("handle %s: empty inventory command", env.MessageID)
	}
	return run(ctx, h.client, h.logger,
		h.stream,
		env.MessageID, env.CorrelationID,
		h.decider.InitialState(), h.decider.Evolve, h.events,
		func(state inventory.State, _ int64) []inventory.Event {
			return h.decider.Decide(env.Body, state)
		},
	)
}

// ProcessOrder feeds saga inputs to the saga instance of their correlation id.
type ProcessOrder struct {
	client logstore.Client
	saga   processorder.Saga
	events *workflow.Encoder[processorder.Input, processorder.Output]
	logger *slog.Logger
}

func NewProcessOrder(client logstore.Client, logger *slog.Logger) *ProcessOrder {
	return &ProcessOrder{
		client: client,
		saga:   processorder.New(),
		events: processorder.Events(),
		logger: loggerOrDefault(logger).With("handler", "process-order"),
	}
}

// Handle records the input as received, followed by the saga's decisions.
// The input begins the instance when its stream does not exist yet.
func (h *ProcessOrder) Handle(ctx context.Context, env Envelope[processorder.Input]) (Result[processorder.Event], error) {
	if env.Body == nil {
		return Result[processorder.Event]{}, fmt.Errorf("handle %s: empty saga input", env.MessageID)
	}
	return run(ctx, h.client, h.logger,
		processorder.StreamName(env.CorrelationID),
		env.MessageID, env.CorrelationID,
		h.saga.InitialState(), h.saga.Evolve, h.events,
		func(state processorder.State, revision int64) []processorder.Event {
			commands := h.saga.Decide(env.Body, state)
			return workflow.Translate(revision == -1, env.Body, commands)
		},
	)
}
