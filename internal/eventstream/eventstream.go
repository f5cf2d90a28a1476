// Package eventstream is the fold-then-append primitive every handler is
// built on.
//
// A handler reads its target stream from the start, folds the records its
// codec recognizes into state, decides, and appends the new events under the
// revision it read. Records the codec does not recognize are skipped but
// still advance the revision, so a foreign record on the stream never hides
// a concurrent write.
package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/logstore"
)

var tracer = otel.Tracer("github.com/roach88/orderflow/internal/eventstream")

// NewEventID generates the id of each appended record.
// Tests may replace it for deterministic output.
var NewEventID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ReadAndFold folds the stream into state and returns it with the revision
// of the last record read. A missing stream yields initial and -1.
func ReadAndFold[S, E any](
	ctx context.Context,
	client logstore.Client,
	stream string,
	initial S,
	evolve func(S, E) S,
	enc codec.Encoder[E],
) (S, int64, error) {
	ctx, span := tracer.Start(ctx, "eventstream.ReadAndFold")
	defer span.End()
	span.SetAttributes(attribute.String("stream", stream))

	state := initial
	revision := int64(-1)
	read, folded := 0, 0

	for record, err := range client.ReadStream(ctx, stream) {
		if err != nil {
			if errors.Is(err, logstore.ErrStreamNotFound) {
				span.SetAttributes(attribute.Bool("stream.exists", false))
				return initial, -1, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "read stream")
			return initial, -1, fmt.Errorf("read and fold %s: %w", stream, err)
		}

		read++
		revision = int64(record.Revision)
		if event, ok := enc.TryDecode(record); ok {
			state = evolve(state, event)
			folded++
		}
	}

	span.SetAttributes(
		attribute.Int("events.read", read),
		attribute.Int("events.folded", folded),
		attribute.Int64("stream.revision", revision),
	)
	slog.DebugContext(ctx, "stream folded",
		"stream", stream,
		"read", read,
		"folded", folded,
		"revision", revision,
	)

	return state, revision, nil
}

// Append encodes events and appends them to stream under the expected
// revision, stamping each with causationID and correlationID. A revision of
// -1 requires the stream not to exist yet.
//
// Conflicts are returned as *logstore.WrongExpectedVersionError; see
// IsConflict.
func Append[E any](
	ctx context.Context,
	client logstore.Client,
	stream string,
	revision int64,
	causationID string,
	correlationID string,
	events []E,
	enc codec.Encoder[E],
) (logstore.AppendResult, error) {
	ctx, span := tracer.Start(ctx, "eventstream.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("stream", stream),
		attribute.Int64("stream.expected_revision", revision),
		attribute.Int("events.count", len(events)),
		attribute.String("correlation_id", correlationID),
	)

	metadata, err := json.Marshal(map[string]string{
		logstore.CausationIDKey:   causationID,
		logstore.CorrelationIDKey: correlationID,
	})
	if err != nil {
		return logstore.AppendResult{}, fmt.Errorf("append to %s: encode metadata: %w", stream, err)
	}

	data := make([]logstore.EventData, 0, len(events))
	for _, event := range events {
		encoded, err := enc.Encode(event)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode")
			return logstore.AppendResult{}, fmt.Errorf("append to %s: %w", stream, err)
		}
		data = append(data, logstore.EventData{
			ID:       NewEventID(),
			Type:     encoded.Type,
			Data:     encoded.Data,
			Metadata: metadata,
		})
	}

	expected := logstore.ExpectedRevision(revision)
	if revision < 0 {
		expected = logstore.NoStream
	}

	result, err := client.AppendToStream(ctx, stream, expected, data...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append")
		return result, err
	}

	span.SetAttributes(attribute.Int64("stream.next_expected_revision", result.NextExpectedRevision))
	return result, nil
}

// IsConflict reports whether err is an optimistic concurrency rejection.
func IsConflict(err error) bool {
	return errors.Is(err, logstore.ErrWrongExpectedVersion)
}
