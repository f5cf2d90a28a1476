// Package logstore defines the boundary to the append-only, revision-ordered
// event log that backs every stream and persistent subscription.
//
// The runtime never owns durability: it reads streams forward from their
// start, appends batches under an expected-revision precondition, and consumes
// server-side filtered subscriptions with ack/park settlement. Concrete stores
// live in subpackages (see logstore/sqlite).
//
// # Revisions
//
// Revisions are zero-based positions within one stream. The value -1
// (NoStream) denotes a stream that does not exist yet; it is both what a fold
// of a missing stream reports and the precondition that makes an append fail
// if someone else created the stream first.
package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"
)

// Metadata keys stamped on every appended record.
const (
	CausationIDKey   = "$causationId"
	CorrelationIDKey = "$correlationId"
)

// RecordedEvent is a record as stored in the log.
type RecordedEvent struct {
	ID       string
	StreamID string
	Revision uint64
	// Position is the record's global position across all streams.
	Position uint64
	Type     string
	Data     []byte
	Metadata []byte
	Created  time.Time
}

// MetadataMap parses the record's free-form metadata.
// Empty metadata yields a nil map and no error.
func (e RecordedEvent) MetadataMap() (map[string]any, error) {
	if len(e.Metadata) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.Metadata, &m); err != nil {
		return nil, fmt.Errorf("parse metadata of %s: %w", e.ID, err)
	}
	return m, nil
}

// EventData is a record to be appended.
// An empty ID is replaced by a store-generated one.
type EventData struct {
	ID       string
	Type     string
	Data     []byte
	Metadata []byte
}

// ExpectedRevision is the optimistic concurrency precondition of an append.
// Non-negative values name the revision the stream must currently be at.
type ExpectedRevision int64

const (
	// NoStream requires that the stream does not exist yet.
	NoStream ExpectedRevision = -1
	// Any skips the precondition check.
	Any ExpectedRevision = -2
)

func (r ExpectedRevision) String() string {
	switch r {
	case NoStream:
		return "no_stream"
	case Any:
		return "any"
	default:
		return fmt.Sprintf("%d", int64(r))
	}
}

// AppendResult reports the outcome of an append.
// NextExpectedRevision is the stream's revision after the append, i.e. the
// value a follow-up append must expect.
type AppendResult struct {
	Success              bool
	NextExpectedRevision int64
	Position             uint64
}

// StartFrom selects where a new persistent subscription begins.
type StartFrom int

const (
	Start StartFrom = iota
	End
)

// FilterTarget selects which record attribute a subscription filter matches.
type FilterTarget string

const (
	FilterOnEventType  FilterTarget = "eventType"
	FilterOnStreamName FilterTarget = "streamName"
)

// Filter is a server-side subscription filter.
type Filter struct {
	CheckpointInterval int
	FilterOn           FilterTarget
	Regex              string
}

// SubscriptionSettings configure a persistent subscription at creation.
type SubscriptionSettings struct {
	StartFrom StartFrom
	Filter    Filter
}

// Client is the log store as seen by the runtime. Implementations are shared
// by all components and must be safe for concurrent use.
type Client interface {
	// ReadStream yields the stream's records in revision order. A stream with
	// no records yields a single ErrStreamNotFound error.
	ReadStream(ctx context.Context, stream string) iter.Seq2[RecordedEvent, error]

	// AppendToStream appends events atomically at contiguous revisions.
	// A precondition mismatch returns a *WrongExpectedVersionError.
	AppendToStream(ctx context.Context, stream string, expected ExpectedRevision, events ...EventData) (AppendResult, error)

	// CreatePersistentSubscription returns ErrSubscriptionExists when the
	// name is already taken.
	CreatePersistentSubscription(ctx context.Context, name string, settings SubscriptionSettings) error

	SubscribeToPersistentSubscription(ctx context.Context, name string) (PersistentSubscription, error)
}

// PersistentSubscription is a connected consumer of a durable, filtered
// cursor. Every delivered record must be settled exactly once with Ack or Park.
type PersistentSubscription interface {
	// Recv blocks until a matching record is available, ctx is done, or the
	// subscription is closed (ErrSubscriptionClosed).
	Recv(ctx context.Context) (RecordedEvent, error)

	// TryRecv is the non-blocking variant of Recv.
	TryRecv(ctx context.Context) (RecordedEvent, bool, error)

	Ack(ctx context.Context, event RecordedEvent) error

	// Park removes the record from live delivery, keeping reason for
	// offline diagnosis.
	Park(ctx context.Context, event RecordedEvent, reason string) error

	// Close unsubscribes. Records already delivered may still be settled.
	Close() error
}

// Notifier wakes delivery waits when a stream is appended to.
type Notifier interface {
	Notify(ctx context.Context, stream string) error
	// Subscribe returns a coalescing wake-up channel and its cancel func.
	Subscribe() (<-chan struct{}, func())
	Close() error
}
