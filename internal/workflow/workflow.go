// Package workflow records a saga's life as durable events.
//
// A saga reacts to inputs from other aggregates and emits outputs to them.
// Its stream holds one began event, then per input a received event followed
// by a sent event per output, and finally completed:
//
//	began
//	received.order-placed
//	sent.bulk-reserve-items-from-inventory
//	received.bulk-reserve-items-from-inventory-succeeded
//	sent.confirm-order
//	completed
//
// The namespaced wire types let downstream subscriptions select exactly the
// outputs they execute without also seeing the inputs.
package workflow

// Event is a lifecycle event of a saga with input I and output O.
// The variants are Began, Received, Sent and Completed.
type Event[I, O any] interface {
	workflowEvent(I, O)
}

type Began[I, O any] struct{}

type Received[I, O any] struct {
	Input I
}

type Sent[I, O any] struct {
	Output O
}

type Completed[I, O any] struct{}

func (Began[I, O]) workflowEvent(I, O)     {}
func (Received[I, O]) workflowEvent(I, O)  {}
func (Sent[I, O]) workflowEvent(I, O)      {}
func (Completed[I, O]) workflowEvent(I, O) {}

// Command is what a saga body decides. The variants are Send and Complete.
type Command[O any] interface {
	workflowCommand(O)
}

type Send[O any] struct {
	Output O
}

type Complete[O any] struct{}

func (Send[O]) workflowCommand(O)     {}
func (Complete[O]) workflowCommand(O) {}

// Saga is the pure body of a workflow. State changes only through Evolve,
// which sees the saga's own lifecycle events.
type Saga[I, O, S any] interface {
	InitialState() S
	Decide(input I, state S) []Command[O]
	Evolve(state S, event Event[I, O]) S
}

// Translate turns the commands decided for input into lifecycle events.
// begins is true when the saga instance has no stream yet.
func Translate[I, O any](begins bool, input I, commands []Command[O]) []Event[I, O] {
	events := make([]Event[I, O], 0, len(commands)+2)
	if begins {
		events = append(events, Began[I, O]{})
	}
	events = append(events, Received[I, O]{Input: input})
	for _, cmd := range commands {
		switch c := cmd.(type) {
		case Send[O]:
			events = append(events, Sent[I, O]{Output: c.Output})
		case Complete[O]:
			events = append(events, Completed[I, O]{})
		}
	}
	return events
}
