// Package codec maps in-process tagged messages to stored records and back.
//
// A message's tag is its PascalCase variant name (MessageName). The stored
// wire type is WireType(tag) and the JSON payload carries the value's fields
// plus the tag itself under the "_named" key:
//
//	type:  order-placed
//	data:  {"_named":"OrderPlaced","customer_id":"C1",...}
//
// Decoding selects the variant from "_named", so a record can be decoded by
// any codec that registers its variant, whatever the record's wire type.
// That is how a consumer turns a "sent.confirm-order" workflow record into a
// plain ConfirmOrder command.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/roach88/orderflow/internal/logstore"
)

// TagField is the payload key holding a message's tag.
const TagField = "_named"

// Message is a variant of a closed, tagged set of commands or events.
type Message interface {
	MessageName() string
}

// Encoded is a message ready to be stored.
type Encoded struct {
	Type string
	Data []byte
}

// Encoder converts between values of T and stored records.
//
// TryDecode reports false, never an error, when the record does not hold a
// T: absent or null payloads, unknown tags, and malformed JSON are all skipped
// by stream folds and acknowledged by consumers.
type Encoder[T any] interface {
	Encode(value T) (Encoded, error)
	TryDecode(record logstore.RecordedEvent) (T, bool)
}

// JSON is the Encoder for a closed set of Message variants.
type JSON[T Message] struct {
	variants  map[string]reflect.Type
	wireTypes []string
}

// NewJSON registers the variants a codec understands. Each variant is given
// as a zero value of its concrete type.
func NewJSON[T Message](variants ...T) *JSON[T] {
	e := &JSON[T]{variants: make(map[string]reflect.Type, len(variants))}
	for _, v := range variants {
		name := v.MessageName()
		if _, dup := e.variants[name]; dup {
			panic(fmt.Sprintf("codec: variant %s registered twice", name))
		}
		e.variants[name] = reflect.TypeOf(v)
		e.wireTypes = append(e.wireTypes, WireType(name))
	}
	return e
}

// WireTypes lists the wire types of the registered variants in registration order.
func (e *JSON[T]) WireTypes() []string {
	return append([]string(nil), e.wireTypes...)
}

// Encode implements Encoder.
func (e *JSON[T]) Encode(value T) (Encoded, error) {
	if any(value) == nil {
		return Encoded{}, fmt.Errorf("encode: nil message")
	}
	data, err := MarshalTagged(value)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{Type: WireType(value.MessageName()), Data: data}, nil
}

// TryDecode implements Encoder.
func (e *JSON[T]) TryDecode(record logstore.RecordedEvent) (T, bool) {
	var zero T

	data := bytes.TrimSpace(record.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return zero, false
	}

	var head struct {
		Named string `json:"_named"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return zero, false
	}
	typ, ok := e.variants[head.Named]
	if !ok {
		return zero, false
	}

	var decoded reflect.Value
	if typ.Kind() == reflect.Pointer {
		decoded = reflect.New(typ.Elem())
		if err := json.Unmarshal(data, decoded.Interface()); err != nil {
			return zero, false
		}
	} else {
		ptr := reflect.New(typ)
		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return zero, false
		}
		decoded = ptr.Elem()
	}

	value, ok := decoded.Interface().(T)
	return value, ok
}

// MarshalTagged renders a message as a JSON object with its tag under TagField.
// Keys are emitted in sorted order.
func MarshalTagged(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageName(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: payload is not an object: %w", m.MessageName(), err)
	}
	tag, err := json.Marshal(m.MessageName())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageName(), err)
	}
	fields[TagField] = tag

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageName(), err)
	}
	return data, nil
}
