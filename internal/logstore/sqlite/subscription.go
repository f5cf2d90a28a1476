package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/roach88/orderflow/internal/logstore"
)

// scanBatch is how many records a subscription reads per query while
// looking for the next match.
const scanBatch = 100

// CreatePersistentSubscription implements logstore.Client.
func (s *Store) CreatePersistentSubscription(ctx context.Context, name string, settings logstore.SubscriptionSettings) error {
	if name == "" {
		return fmt.Errorf("create subscription: name is required")
	}

	filterOn := settings.Filter.FilterOn
	switch filterOn {
	case "":
		filterOn = logstore.FilterOnEventType
	case logstore.FilterOnEventType, logstore.FilterOnStreamName:
	default:
		return fmt.Errorf("create subscription %s: unknown filter target %q", name, filterOn)
	}
	if _, err := regexp.Compile(settings.Filter.Regex); err != nil {
		return fmt.Errorf("create subscription %s: invalid filter: %w", name, err)
	}

	var start int64
	if settings.StartFrom == logstore.End {
		err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM events`).Scan(&start)
		if err != nil {
			return fmt.Errorf("create subscription %s: read head: %w", name, err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions
		(name, filter_on, filter_regex, checkpoint_interval, checkpoint_position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, string(filterOn), settings.Filter.Regex, settings.Filter.CheckpointInterval, start, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("create subscription %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create subscription %s: rows affected: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("create subscription %s: %w", name, logstore.ErrSubscriptionExists)
	}
	return nil
}

// SubscribeToPersistentSubscription implements logstore.Client.
//
// Delivery resumes after the subscription's last checkpoint. Every
// settlement is written before Ack or Park returns, so records acknowledged
// or parked since that checkpoint are skipped rather than delivered again.
// Only records that were delivered but never settled are redelivered.
func (s *Store) SubscribeToPersistentSubscription(ctx context.Context, name string) (logstore.PersistentSubscription, error) {
	var (
		filterOn   string
		pattern    string
		interval   int
		checkpoint int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT filter_on, filter_regex, checkpoint_interval, checkpoint_position
		FROM subscriptions
		WHERE name = ?
	`, name).Scan(&filterOn, &pattern, &interval, &checkpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscribe to %s: %w", name, logstore.ErrSubscriptionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", name, err)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: invalid filter: %w", name, err)
	}
	if interval < 1 {
		interval = 1
	}

	// Register for wake-ups before the first scan so no append is missed.
	wake, cancel := s.notifier.Subscribe()

	return &subscription{
		store:      s,
		name:       name,
		filterOn:   logstore.FilterTarget(filterOn),
		re:         re,
		interval:   interval,
		cursor:     uint64(checkpoint),
		checkpoint: uint64(checkpoint),
		inflight:   make(map[uint64]struct{}),
		done:       make(chan struct{}),
		wake:       wake,
		cancelWake: cancel,
	}, nil
}

type subscription struct {
	store    *Store
	name     string
	filterOn logstore.FilterTarget
	re       *regexp.Regexp
	interval int

	mu         sync.Mutex
	cursor     uint64 // last position examined
	checkpoint uint64 // last position persisted
	inflight   map[uint64]struct{}
	settled    int
	closed     bool

	done       chan struct{}
	wake       <-chan struct{}
	cancelWake func()
}

func (sub *subscription) Recv(ctx context.Context) (logstore.RecordedEvent, error) {
	ticker := time.NewTicker(sub.store.pollInterval)
	defer ticker.Stop()

	wake := sub.wake
	for {
		ev, ok, err := sub.TryRecv(ctx)
		if err != nil {
			return logstore.RecordedEvent{}, err
		}
		if ok {
			return ev, nil
		}

		select {
		case <-ctx.Done():
			return logstore.RecordedEvent{}, ctx.Err()
		case <-sub.done:
			return logstore.RecordedEvent{}, logstore.ErrSubscriptionClosed
		case _, open := <-wake:
			if !open {
				// notifier gone, fall back to polling
				wake = nil
			}
		case <-ticker.C:
		}
	}
}

func (sub *subscription) TryRecv(ctx context.Context) (logstore.RecordedEvent, bool, error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return logstore.RecordedEvent{}, false, logstore.ErrSubscriptionClosed
	}

	for {
		batch, err := sub.scan(ctx)
		if err != nil {
			return logstore.RecordedEvent{}, false, err
		}
		if len(batch) == 0 {
			return logstore.RecordedEvent{}, false, nil
		}
		for _, ev := range batch {
			sub.cursor = ev.Position
			if sub.matches(ev) {
				sub.inflight[ev.Position] = struct{}{}
				return ev, true, nil
			}
		}
	}
}

func (sub *subscription) scan(ctx context.Context) ([]logstore.RecordedEvent, error) {
	rows, err := sub.store.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE position > ?
		  AND position NOT IN (SELECT position FROM parked WHERE subscription = ?)
		  AND position NOT IN (SELECT position FROM acked WHERE subscription = ?)
		ORDER BY position ASC
		LIMIT ?
	`, sub.cursor, sub.name, sub.name, scanBatch)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: scan: %w", sub.name, err)
	}
	defer rows.Close()

	var batch []logstore.RecordedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("subscription %s: %w", sub.name, err)
		}
		batch = append(batch, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("subscription %s: iterate: %w", sub.name, err)
	}
	return batch, nil
}

func (sub *subscription) matches(ev logstore.RecordedEvent) bool {
	if sub.filterOn == logstore.FilterOnStreamName {
		return sub.re.MatchString(ev.StreamID)
	}
	return sub.re.MatchString(ev.Type)
}

func (sub *subscription) Ack(ctx context.Context, ev logstore.RecordedEvent) error {
	return sub.settle(ctx, ev, "", false)
}

func (sub *subscription) Park(ctx context.Context, ev logstore.RecordedEvent, reason string) error {
	return sub.settle(ctx, ev, reason, true)
}

func (sub *subscription) settle(ctx context.Context, ev logstore.RecordedEvent, reason string, park bool) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if _, ok := sub.inflight[ev.Position]; !ok {
		return fmt.Errorf("subscription %s: settle %s: %w", sub.name, ev.ID, logstore.ErrNotInFlight)
	}

	if park {
		_, err := sub.store.db.ExecContext(ctx, `
			INSERT INTO parked (subscription, position, event_id, stream_id, type, reason, parked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, sub.name, ev.Position, ev.ID, ev.StreamID, ev.Type, reason, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("subscription %s: park %s: %w", sub.name, ev.ID, err)
		}
	} else {
		_, err := sub.store.db.ExecContext(ctx, `
			INSERT INTO acked (subscription, position)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, sub.name, ev.Position)
		if err != nil {
			return fmt.Errorf("subscription %s: ack %s: %w", sub.name, ev.ID, err)
		}
	}

	delete(sub.inflight, ev.Position)
	sub.settled++
	if sub.settled >= sub.interval || sub.closed {
		return sub.writeCheckpoint(ctx)
	}
	return nil
}

// writeCheckpoint persists the highest position below which every delivered
// record has been settled, and drops the acknowledgements it now covers.
// Callers hold sub.mu.
func (sub *subscription) writeCheckpoint(ctx context.Context) error {
	pos := sub.cursor
	for p := range sub.inflight {
		if p-1 < pos {
			pos = p - 1
		}
	}
	sub.settled = 0
	if pos <= sub.checkpoint {
		return nil
	}

	tx, err := sub.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("subscription %s: checkpoint: begin: %w", sub.name, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET checkpoint_position = ?
		WHERE name = ? AND checkpoint_position < ?
	`, pos, sub.name, pos)
	if err != nil {
		return fmt.Errorf("subscription %s: checkpoint: %w", sub.name, err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM acked
		WHERE subscription = ? AND position <= ?
	`, sub.name, pos)
	if err != nil {
		return fmt.Errorf("subscription %s: checkpoint: prune acked: %w", sub.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("subscription %s: checkpoint: commit: %w", sub.name, err)
	}
	sub.checkpoint = pos
	return nil
}

func (sub *subscription) Close() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return nil
	}
	sub.closed = true
	close(sub.done)
	sub.cancelWake()
	return sub.writeCheckpoint(context.Background())
}

// ParkedMessage is a record a subscription failed to handle.
type ParkedMessage struct {
	Subscription string
	Position     uint64
	EventID      string
	StreamID     string
	Type         string
	Reason       string
	ParkedAt     time.Time
}

// ListParked returns the records parked by a subscription in position order.
func (s *Store) ListParked(ctx context.Context, name string) ([]ParkedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subscription, position, event_id, stream_id, type, reason, parked_at
		FROM parked
		WHERE subscription = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("list parked %s: %w", name, err)
	}
	defer rows.Close()

	parked := []ParkedMessage{}
	for rows.Next() {
		var (
			pm       ParkedMessage
			position int64
			parkedAt string
		)
		if err := rows.Scan(&pm.Subscription, &position, &pm.EventID, &pm.StreamID, &pm.Type, &pm.Reason, &parkedAt); err != nil {
			return nil, fmt.Errorf("list parked %s: scan: %w", name, err)
		}
		pm.Position = uint64(position)
		if pm.ParkedAt, err = parseTime(parkedAt); err != nil {
			return nil, fmt.Errorf("list parked %s: %w", name, err)
		}
		parked = append(parked, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list parked %s: iterate: %w", name, err)
	}
	return parked, nil
}
