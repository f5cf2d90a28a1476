// Package natsnotify fans append notifications out over NATS so subscribers
// in other processes sharing the same log database wake without waiting for
// their poll interval.
package natsnotify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/orderflow/internal/logstore"
)

const closeFlushTimeout = 2 * time.Second

// DefaultSubject carries the name of every appended stream.
const DefaultSubject = "orderflow.logstore.appended"

// Notifier is a logstore.Notifier backed by a NATS subject.
// Appends are published as the stream name; every message received on the
// subject, including our own, wakes local subscribers.
type Notifier struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
	local   *logstore.Broadcast
}

// New connects to NATS with automatic reconnection support.
// Extra nats.Option values (e.g. disconnect/reconnect handlers) can be appended.
func New(url, subject string, opts ...nats.Option) (*Notifier, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	defaults := []nats.Option{
		nats.Name("orderflow-logstore"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	n := &Notifier{
		conn:    nc,
		subject: subject,
		local:   logstore.NewBroadcast(),
	}

	n.sub, err = nc.Subscribe(subject, func(msg *nats.Msg) {
		n.local.Notify(context.Background(), string(msg.Data))
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flushing subscription to %s: %w", subject, err)
	}

	return n, nil
}

// Notify publishes the appended stream's name.
func (n *Notifier) Notify(_ context.Context, stream string) error {
	if err := n.conn.Publish(n.subject, []byte(stream)); err != nil {
		return fmt.Errorf("publishing append of %s: %w", stream, err)
	}
	return nil
}

// Subscribe implements logstore.Notifier.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	return n.local.Subscribe()
}

// Close unsubscribes, flushes notifications not yet sent, and releases
// local waiters. A short-lived process can append and close right away.
func (n *Notifier) Close() error {
	if n.sub != nil {
		n.sub.Unsubscribe()
	}
	// best effort: subscribers still poll
	_ = n.conn.FlushTimeout(closeFlushTimeout)
	n.conn.Close()
	return n.local.Close()
}

var _ logstore.Notifier = (*Notifier)(nil)
