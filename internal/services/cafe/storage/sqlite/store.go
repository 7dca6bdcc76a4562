package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/louisbranch/cafe/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/storage"
	"github.com/louisbranch/cafe/internal/services/cafe/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed storage.EventStore.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.EventStore = (*Store)(nil)

// Open creates a fresh in-memory database and applies the event migrations.
func Open(ctx context.Context) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Every connection to :memory: is its own database; keep exactly one alive.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.EventsFS, "events"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the database. The stored events are gone afterwards.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LoadStream returns the stream ordered by sequence.
func (s *Store) LoadStream(ctx context.Context, streamID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq, event_type, timestamp, correlation_id, causation_id, payload_json
FROM events
WHERE stream_id = ?
ORDER BY seq`, streamID)
	if err != nil {
		return nil, fmt.Errorf("query stream %s: %w", streamID, err)
	}
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var (
			seq       int64
			evtType   string
			timestamp int64
			evt       = event.Event{StreamID: streamID}
		)
		if err := rows.Scan(&seq, &evtType, &timestamp, &evt.CorrelationID, &evt.CausationID, &evt.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Seq = uint64(seq)
		evt.Type = event.Type(evtType)
		evt.Timestamp = fromMillis(timestamp)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stream %s: %w", streamID, err)
	}
	return events, nil
}

// AppendIfVersionMatches appends events in one transaction when the stream is
// at expected. Timestamps are stored with millisecond precision.
func (s *Store) AppendIfVersionMatches(ctx context.Context, streamID string, expected int, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	stamped, err := storage.Stamp(streamID, expected, events)
	if err != nil || stamped == nil {
		return nil, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE stream_id = ?", streamID).Scan(&current); err != nil {
		return nil, fmt.Errorf("read stream version: %w", err)
	}
	if current != expected {
		return nil, conflict(streamID, current, expected)
	}

	for i := range stamped {
		evt := &stamped[i]
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		payload := evt.PayloadJSON
		if payload == nil {
			payload = []byte{}
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (stream_id, seq, event_type, timestamp, correlation_id, causation_id, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			streamID, int64(evt.Seq), string(evt.Type), toMillis(evt.Timestamp),
			evt.CorrelationID, evt.CausationID, payload,
		); err != nil {
			if isPrimaryKeyViolation(err) {
				return nil, conflict(streamID, current, expected)
			}
			return nil, fmt.Errorf("insert event seq %d: %w", evt.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stamped, nil
}

func conflict(streamID string, current, expected int) error {
	return fmt.Errorf("%w: stream %s is at version %d, expected %d",
		storage.ErrConcurrencyConflict, streamID, current, expected)
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
