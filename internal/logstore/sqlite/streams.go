package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/roach88/orderflow/internal/logstore"
)

const eventColumns = `position, id, stream_id, revision, type, data, metadata, created_at`

// ReadStream implements logstore.Client.
// Rows are loaded before the first yield.
func (s *Store) ReadStream(ctx context.Context, stream string) iter.Seq2[logstore.RecordedEvent, error] {
	return func(yield func(logstore.RecordedEvent, error) bool) {
		events, err := s.readStream(ctx, stream)
		if err != nil {
			yield(logstore.RecordedEvent{}, err)
			return
		}
		if len(events) == 0 {
			yield(logstore.RecordedEvent{}, fmt.Errorf("read stream %s: %w", stream, logstore.ErrStreamNotFound))
			return
		}
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (s *Store) readStream(ctx context.Context, stream string) ([]logstore.RecordedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE stream_id = ?
		ORDER BY revision ASC
	`, stream)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	defer rows.Close()

	var events []logstore.RecordedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("read stream %s: %w", stream, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stream %s: iterate: %w", stream, err)
	}
	return events, nil
}

// AppendToStream implements logstore.Client.
//
// The precondition check and all inserts share one transaction, so a batch
// is either stored at contiguous revisions or not at all. Subscribers are
// notified after commit.
func (s *Store) AppendToStream(ctx context.Context, stream string, expected logstore.ExpectedRevision, events ...logstore.EventData) (logstore.AppendResult, error) {
	if stream == "" {
		return logstore.AppendResult{}, fmt.Errorf("append: stream name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return logstore.AppendResult{}, fmt.Errorf("append to %s: begin tx: %w", stream, err)
	}
	defer tx.Rollback() // No-op if committed

	var current int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(revision), -1) FROM events WHERE stream_id = ?
	`, stream).Scan(&current)
	if err != nil {
		return logstore.AppendResult{}, fmt.Errorf("append to %s: read revision: %w", stream, err)
	}

	if expected != logstore.Any && int64(expected) != current {
		return logstore.AppendResult{NextExpectedRevision: current}, &logstore.WrongExpectedVersionError{
			Stream:   stream,
			Expected: expected,
			Actual:   current,
		}
	}

	if len(events) == 0 {
		return logstore.AppendResult{Success: true, NextExpectedRevision: current}, nil
	}

	createdAt := formatTime(time.Now())
	revision := current
	var position int64
	for _, ev := range events {
		revision++
		id := ev.ID
		if id == "" {
			id = s.newID()
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, stream_id, revision, type, data, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, stream, revision, ev.Type, nonNil(ev.Data), nonNil(ev.Metadata), createdAt)
		if err != nil {
			if isUniqueViolation(err) {
				if strings.Contains(err.Error(), "events.id") {
					return logstore.AppendResult{}, fmt.Errorf("append to %s: duplicate event id %s: %w", stream, id, err)
				}
				return logstore.AppendResult{NextExpectedRevision: current}, &logstore.WrongExpectedVersionError{
					Stream:   stream,
					Expected: expected,
					Actual:   revision,
				}
			}
			return logstore.AppendResult{}, fmt.Errorf("append to %s: insert: %w", stream, err)
		}

		position, err = res.LastInsertId()
		if err != nil {
			return logstore.AppendResult{}, fmt.Errorf("append to %s: last insert id: %w", stream, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return logstore.AppendResult{}, fmt.Errorf("append to %s: commit: %w", stream, err)
	}

	if err := s.notifier.Notify(ctx, stream); err != nil {
		s.logger.Warn("append notification failed",
			"stream", stream,
			"error", err,
		)
	}

	return logstore.AppendResult{
		Success:              true,
		NextExpectedRevision: revision,
		Position:             uint64(position),
	}, nil
}

// StreamInfo summarizes one stream.
type StreamInfo struct {
	Name     string
	Revision int64
	Count    int
}

// Streams lists every stream in order of first append.
func (s *Store) Streams(ctx context.Context) ([]StreamInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stream_id, MAX(revision), COUNT(*)
		FROM events
		GROUP BY stream_id
		ORDER BY MIN(position) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	streams := []StreamInfo{}
	for rows.Next() {
		var info StreamInfo
		if err := rows.Scan(&info.Name, &info.Revision, &info.Count); err != nil {
			return nil, fmt.Errorf("list streams: scan: %w", err)
		}
		streams = append(streams, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list streams: iterate: %w", err)
	}
	return streams, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (logstore.RecordedEvent, error) {
	var (
		ev        logstore.RecordedEvent
		position  int64
		revision  int64
		createdAt string
	)
	err := row.Scan(&position, &ev.ID, &ev.StreamID, &revision, &ev.Type, &ev.Data, &ev.Metadata, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ev, err
		}
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Position = uint64(position)
	ev.Revision = uint64(revision)
	if ev.Created, err = parseTime(createdAt); err != nil {
		return ev, err
	}
	return ev, nil
}
