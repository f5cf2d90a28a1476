// Package subscriber consumes persistent subscriptions and dispatches each
// delivered record to a handler.
//
// Every delivered record is settled exactly once. Records the subscriber's
// codec does not recognize are acknowledged unhandled. Handler failures,
// including concurrency conflicts and panics, park the record with the
// failure as reason; nothing is retried automatically. A failed receive is
// retried with a doubling delay and never stops a consumer.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/eventstream"
	"github.com/roach88/orderflow/internal/filter"
	"github.com/roach88/orderflow/internal/handler"
	"github.com/roach88/orderflow/internal/logstore"
)

var tracer = otel.Tracer("github.com/roach88/orderflow/internal/subscriber")

// DefaultCheckpointInterval is how many settlements pass between checkpoints.
const DefaultCheckpointInterval = 1000

// DefaultRetryDelay is the first pause after a failed receive. It doubles on
// each consecutive failure up to maxRetryDelay.
const DefaultRetryDelay = 250 * time.Millisecond

const maxRetryDelay = 30 * time.Second

// HandleFunc handles one decoded message.
type HandleFunc[T any] func(ctx context.Context, env handler.Envelope[T]) error

// Config describes one subscription and its consumer.
type Config[T any] struct {
	Name               string
	Filter             filter.MessageFilter
	CheckpointInterval int
	Decoder            codec.Encoder[T]
	Handle             HandleFunc[T]
	Logger             *slog.Logger
	// RetryDelay overrides DefaultRetryDelay.
	RetryDelay time.Duration
}

// Subscriber is the consumer of one persistent subscription.
type Subscriber[T any] struct {
	client             logstore.Client
	name               string
	filter             filter.MessageFilter
	checkpointInterval int
	decoder            codec.Encoder[T]
	handle             HandleFunc[T]
	logger             *slog.Logger
	retryDelay         time.Duration
}

// Runner is a Subscriber with its message type erased.
type Runner interface {
	Name() string
	Filter() filter.MessageFilter
	CreateIfNotExists(ctx context.Context) error
	Open(ctx context.Context) (logstore.PersistentSubscription, error)
	Drain(ctx context.Context, sub logstore.PersistentSubscription) (int, error)
	Subscribe(ctx context.Context) (*Consumer, error)
}

// New validates cfg and builds a subscriber.
func New[T any](client logstore.Client, cfg Config[T]) (*Subscriber[T], error) {
	if client == nil {
		return nil, fmt.Errorf("new subscriber %s: client is required", cfg.Name)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("new subscriber: name is required")
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("new subscriber %s: decoder is required", cfg.Name)
	}
	if cfg.Handle == nil {
		return nil, fmt.Errorf("new subscriber %s: handle func is required", cfg.Name)
	}
	if len(cfg.Filter.Messages()) == 0 {
		return nil, fmt.Errorf("new subscriber %s: filter accepts no messages", cfg.Name)
	}

	interval := cfg.CheckpointInterval
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Subscriber[T]{
		client:             client,
		name:               cfg.Name,
		filter:             cfg.Filter,
		checkpointInterval: interval,
		decoder:            cfg.Decoder,
		handle:             cfg.Handle,
		logger:             logger.With("subscription", cfg.Name),
		retryDelay:         retryDelay,
	}, nil
}

func (s *Subscriber[T]) Name() string { return s.name }

func (s *Subscriber[T]) Filter() filter.MessageFilter { return s.filter }

// CreateIfNotExists creates the subscription from the start of the log.
// An existing subscription of the same name is left untouched.
func (s *Subscriber[T]) CreateIfNotExists(ctx context.Context) error {
	err := s.client.CreatePersistentSubscription(ctx, s.name, logstore.SubscriptionSettings{
		StartFrom: logstore.Start,
		Filter:    s.filter.ToServerFilter(s.checkpointInterval),
	})
	if errors.Is(err, logstore.ErrSubscriptionExists) {
		s.logger.DebugContext(ctx, "subscription already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create subscription %s: %w", s.name, err)
	}
	s.logger.InfoContext(ctx, "subscription created", "filter", s.filter.RegularExpression())
	return nil
}

// Open creates the subscription if needed and connects to it.
func (s *Subscriber[T]) Open(ctx context.Context) (logstore.PersistentSubscription, error) {
	if err := s.CreateIfNotExists(ctx); err != nil {
		return nil, err
	}
	sub, err := s.client.SubscribeToPersistentSubscription(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", s.name, err)
	}
	return sub, nil
}

// Drain processes every record currently available without waiting for
// more, and reports how many it settled.
func (s *Subscriber[T]) Drain(ctx context.Context, sub logstore.PersistentSubscription) (int, error) {
	n := 0
	for {
		record, ok, err := sub.TryRecv(ctx)
		if err != nil {
			return n, fmt.Errorf("drain %s: %w", s.name, err)
		}
		if !ok {
			return n, nil
		}
		if err := s.process(ctx, sub, record); err != nil {
			return n, err
		}
		n++
	}
}

// Subscribe opens the subscription and consumes it on a new goroutine until
// the returned Consumer is closed or ctx is cancelled.
func (s *Subscriber[T]) Subscribe(ctx context.Context) (*Consumer, error) {
	sub, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}

	c := &Consumer{name: s.name, sub: sub, stop: make(chan struct{}), done: make(chan struct{})}
	go s.consume(ctx, c)
	s.logger.InfoContext(ctx, "consumer started")
	return c, nil
}

// consume receives until the subscription is closed or ctx ends. Receive
// failures are retried with a doubling delay; they never end the loop.
func (s *Subscriber[T]) consume(ctx context.Context, c *Consumer) {
	defer close(c.done)
	defer func() {
		if err := c.sub.Close(); err != nil {
			c.err = fmt.Errorf("close %s: %w", s.name, err)
		}
	}()

	failures := 0
	for {
		record, err := c.sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, logstore.ErrSubscriptionClosed) || ctx.Err() != nil {
				s.logger.Info("consumer stopped")
				return
			}
			failures++
			delay := retryBackoff(s.retryDelay, failures)
			s.logger.Warn("receive failed, retrying",
				"error", err,
				"attempt", failures,
				"retry_in", delay,
			)
			if !c.wait(ctx, delay) {
				s.logger.Info("consumer stopped")
				return
			}
			continue
		}
		failures = 0

		// A message runs to completion even if ctx is cancelled meanwhile.
		if err := s.process(context.WithoutCancel(ctx), c.sub, record); err != nil {
			s.logger.Error("settle failed",
				"event_id", record.ID,
				"error", err,
			)
		}
	}
}

// process decodes, handles and settles one record. The returned error is
// a settlement failure; handler failures are parked, not returned.
func (s *Subscriber[T]) process(ctx context.Context, sub logstore.PersistentSubscription, record logstore.RecordedEvent) error {
	ctx, span := tracer.Start(ctx, "subscriber.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("subscription", s.name),
			attribute.String("event.id", record.ID),
			attribute.String("event.type", record.Type),
			attribute.String("stream", record.StreamID),
		),
	)
	defer span.End()

	body, ok := s.decoder.TryDecode(record)
	if !ok {
		s.logger.DebugContext(ctx, "record not understood, acknowledging",
			"event_id", record.ID,
			"type", record.Type,
		)
		return sub.Ack(ctx, record)
	}

	err := s.dispatch(ctx, record, body)
	if err != nil {
		s.logger.ErrorContext(ctx, "message parked",
			"event_id", record.ID,
			"type", record.Type,
			"stream", record.StreamID,
			"conflict", eventstream.IsConflict(err),
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "parked")
		if perr := sub.Park(ctx, record, err.Error()); perr != nil {
			return fmt.Errorf("park %s: %w", record.ID, perr)
		}
		return nil
	}

	if err := sub.Ack(ctx, record); err != nil {
		return fmt.Errorf("ack %s: %w", record.ID, err)
	}
	return nil
}

func (s *Subscriber[T]) dispatch(ctx context.Context, record logstore.RecordedEvent, body T) (err error) {
	correlationID, err := correlationOf(record)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic on %s: %v", record.ID, r)
		}
	}()
	return s.handle(ctx, handler.Envelope[T]{
		MessageID:     record.ID,
		CorrelationID: correlationID,
		Body:          body,
	})
}

// correlationOf is the record's $correlationId, or its own id when the
// record starts a transaction.
func correlationOf(record logstore.RecordedEvent) (string, error) {
	meta, err := record.MetadataMap()
	if err != nil {
		return "", err
	}
	if id, ok := meta[logstore.CorrelationIDKey].(string); ok && id != "" {
		return id, nil
	}
	return record.ID, nil
}

// retryBackoff is base doubled per consecutive failure, capped at maxRetryDelay.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return min(delay, maxRetryDelay)
}

// Consumer is a running consume loop.
type Consumer struct {
	name     string
	sub      logstore.PersistentSubscription
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// wait pauses for d and reports false if the consumer was closed or ctx
// ended meanwhile.
func (c *Consumer) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	case <-timer.C:
		return true
	}
}

// Name is the subscription consumed.
func (c *Consumer) Name() string { return c.name }

// Done is closed when the loop has exited.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Close unsubscribes and waits for the message in flight, if any, to be
// settled. It returns the error of closing the subscription, if any.
func (c *Consumer) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	err := c.sub.Close()
	<-c.done
	if err != nil {
		return fmt.Errorf("close %s: %w", c.name, err)
	}
	return c.err
}
