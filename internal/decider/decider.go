// Package decider defines the pure state machine every aggregate is written as.
//
// A decider never performs I/O. Decide turns a command and the current state
// into new events; Evolve folds one event into the state. The only side
// input is the Clock, read at decide time to timestamp produced events.
package decider

import "time"

// Decider is the {initial state, evolve, decide} triple of one aggregate.
//
// Decide must be total: a command that is not valid for the state yields no
// events rather than an error. Evolve must ignore events it does not expect.
type Decider[C, E, S any] interface {
	InitialState() S
	Evolve(state S, event E) S
	Decide(command C, state S) []E
}

// Fold applies events to state in order.
func Fold[E, S any](evolve func(S, E) S, state S, events []E) S {
	for _, e := range events {
		state = evolve(state, e)
	}
	return state
}

// Clock supplies decide-time timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
