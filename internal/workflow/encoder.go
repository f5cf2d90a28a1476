package workflow

import (
	"fmt"
	"strings"

	"github.com/roach88/orderflow/internal/codec"
	"github.com/roach88/orderflow/internal/logstore"
)

// Wire types of the lifecycle events.
const (
	TypeBegan     = "began"
	TypeCompleted = "completed"

	prefixReceived = "received"
	prefixSent     = "sent"
)

var emptyPayload = []byte("{}")

// ReceivedType is the wire type of a received event wrapping an input of
// the given wire type.
func ReceivedType(inputType string) string { return prefixReceived + "." + inputType }

// SentType is the wire type of a sent event wrapping an output of the given
// wire type.
func SentType(outputType string) string { return prefixSent + "." + outputType }

// Encoder encodes lifecycle events by delegating payloads to an input and
// an output codec.
type Encoder[I, O any] struct {
	input  codec.Encoder[I]
	output codec.Encoder[O]
}

// NewEncoder composes the input and output codecs of a saga.
func NewEncoder[I, O any](input codec.Encoder[I], output codec.Encoder[O]) *Encoder[I, O] {
	return &Encoder[I, O]{input: input, output: output}
}

// Encode implements codec.Encoder.
func (e *Encoder[I, O]) Encode(event Event[I, O]) (codec.Encoded, error) {
	switch ev := event.(type) {
	case Began[I, O]:
		return codec.Encoded{Type: TypeBegan, Data: emptyPayload}, nil
	case Completed[I, O]:
		return codec.Encoded{Type: TypeCompleted, Data: emptyPayload}, nil
	case Received[I, O]:
		inner, err := e.input.Encode(ev.Input)
		if err != nil {
			return codec.Encoded{}, fmt.Errorf("encode received: %w", err)
		}
		return codec.Encoded{Type: ReceivedType(inner.Type), Data: inner.Data}, nil
	case Sent[I, O]:
		inner, err := e.output.Encode(ev.Output)
		if err != nil {
			return codec.Encoded{}, fmt.Errorf("encode sent: %w", err)
		}
		return codec.Encoded{Type: SentType(inner.Type), Data: inner.Data}, nil
	default:
		return codec.Encoded{}, fmt.Errorf("encode: unknown workflow event %T", event)
	}
}

// TryDecode implements codec.Encoder. The wire type is split at its first
// dot: the prefix names the lifecycle phase and the rest is handed to the
// inner codec.
func (e *Encoder[I, O]) TryDecode(record logstore.RecordedEvent) (Event[I, O], bool) {
	phase, innerType, namespaced := strings.Cut(record.Type, ".")
	if !namespaced {
		switch phase {
		case TypeBegan:
			return Began[I, O]{}, true
		case TypeCompleted:
			return Completed[I, O]{}, true
		}
		return nil, false
	}

	inner := record
	inner.Type = innerType
	switch phase {
	case prefixReceived:
		in, ok := e.input.TryDecode(inner)
		if !ok {
			return nil, false
		}
		return Received[I, O]{Input: in}, true
	case prefixSent:
		out, ok := e.output.TryDecode(inner)
		if !ok {
			return nil, false
		}
		return Sent[I, O]{Output: out}, true
	}
	return nil, false
}

var _ codec.Encoder[Event[struct{}, struct{}]] = (*Encoder[struct{}, struct{}])(nil)
