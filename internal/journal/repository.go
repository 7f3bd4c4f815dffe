// Package journal persists link events (connection state changes and
// failed traffic) to the link_events table and serves them back for
// diagnostics.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what an Event records.
type Kind string

// Event kinds.
const (
	// KindStatus is a link state transition.
	KindStatus Kind = "status"

	// KindSendFailed is a publish the engine refused.
	KindSendFailed Kind = "send_failed"

	// KindAckFailed is a publish the broker did not acknowledge.
	KindAckFailed Kind = "ack_failed"

	// KindUnhandled is an inbound message no handler matched.
	KindUnhandled Kind = "unhandled"
)

// timeLayout is fixed width so created_at sorts lexically. Times are stored in UTC.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Pagination limits for List.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Event is one row of the link journal.
type Event struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Topic string `json:"topic,omitempty"`
	State string `json:"state,omitempty"`
	Size  int    `json:"size"`

	// RequestID is the facade request identifier; 0 means none.
	RequestID uint64 `json:"request_id,omitempty"`

	// Dispatched is set for inbound messages only.
	Dispatched *bool `json:"dispatched,omitempty"`

	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which events List returns.
type Filter struct {
	Kind   Kind      // optional: filter by event kind
	Topic  string    // optional: filter by exact topic
	Since  time.Time // optional: only events at or after this time
	Limit  int       // default 50, max 200
	Offset int       // pagination offset
}

// ListResult contains a page of events.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository stores and lists link events.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores link events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an event. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = "evt-" + uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var requestID any
	if event.RequestID != 0 {
		requestID = int64(event.RequestID) //nolint:gosec // request IDs are sequential and never reach 2^63
	}
	var dispatched any
	if event.Dispatched != nil {
		dispatched = boolToInt(*event.Dispatched)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO link_events (id, kind, topic, state, size, request_id, dispatched, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Kind),
		nullableString(event.Topic), nullableString(event.State),
		event.Size, requestID, dispatched,
		nullableString(event.Error),
		event.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting link event: %w", err)
	}

	return nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns events matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filter.Topic)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM link_events %s", where) //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting link events: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		"SELECT id, kind, topic, state, size, request_id, dispatched, error, created_at FROM link_events %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying link events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e                 Event
			kind              string
			topic, state, msg sql.NullString
			requestID         sql.NullInt64
			dispatched        sql.NullInt64
			createdAt         string
		)

		if err := rows.Scan(&e.ID, &kind, &topic, &state, &e.Size,
			&requestID, &dispatched, &msg, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning link event: %w", err)
		}

		e.Kind = Kind(kind)
		e.Topic = topic.String
		e.State = state.String
		e.Error = msg.String
		if requestID.Valid {
			e.RequestID = uint64(requestID.Int64) //nolint:gosec // stored from a uint64 below 2^63
		}
		if dispatched.Valid {
			d := dispatched.Int64 != 0
			e.Dispatched = &d
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing link event timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
