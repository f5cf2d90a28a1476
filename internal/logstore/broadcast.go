package logstore

import (
	"context"
	"sync"
)

// Broadcast is the in-process Notifier.
//
// Each subscriber owns a channel with a buffer of one, so bursts of appends
// coalesce into a single wake-up and Notify never blocks.
type Broadcast struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	next   int
	closed bool
}

// NewBroadcast creates an empty broadcaster.
func NewBroadcast() *Broadcast {
	return &Broadcast{subs: make(map[int]chan struct{})}
}

// Notify signals every subscriber.
func (b *Broadcast) Notify(_ context.Context, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe registers a wake-up channel. After Close the returned channel is
// already closed so waiters fall through immediately.
func (b *Broadcast) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{}, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

// Close wakes and drops all subscribers.
func (b *Broadcast) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return nil
}

var _ Notifier = (*Broadcast)(nil)
