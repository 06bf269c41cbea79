package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pvs_monitor/internal/models"

	"github.com/google/uuid"
)

// sqliteTimestamp is the TIMESTAMP layout stored in poll_events.
const sqliteTimestamp = "2006-01-02 15:04:05"

const insertEventSQL = `
	INSERT INTO poll_events (id, occurred_at, type, message, meta)
	VALUES (?, ?, ?, ?, ?)
`

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

// Append inserts a new event. EventID and OccurredAt are filled in when empty.
func (r *EventSQLite) Append(ctx context.Context, e models.PollEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}

	var metaPtr *string
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			s := string(b)
			metaPtr = &s
		}
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		e.OccurredAt.Format(sqliteTimestamp),
		strings.ToUpper(strings.TrimSpace(e.Type)),
		e.Description,
		metaPtr,
	)
	if err != nil {
		return fmt.Errorf("insert poll event %s: %w", e.EventID, err)
	}
	return nil
}

// List returns events in [From, To] (inclusive) and of Type when set, oldest first.
// With a Limit only the newest Limit events are returned, still oldest first.
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]models.PollEvent, error) {
	var (
		conds []string
		args  []any
	)

	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.From.UTC().Format(sqliteTimestamp))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.To.UTC().Format(sqliteTimestamp))
	}
	if typ := strings.ToUpper(strings.TrimSpace(f.Type)); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}

	q := `SELECT id, occurred_at, type, message, meta FROM poll_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.Limit > 0 {
		q = `SELECT * FROM (` + q + ` ORDER BY occurred_at DESC LIMIT ?) ORDER BY occurred_at ASC`
		args = append(args, f.Limit)
	} else {
		q += " ORDER BY occurred_at ASC"
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select poll events: %w", err)
	}
	defer rows.Close()

	out := make([]models.PollEvent, 0, 64)
	for rows.Next() {
		var ev models.PollEvent
		var metaStr sql.NullString
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &ev.Description, &metaStr); err != nil {
			return nil, err
		}
		ev.OccurredAt = ev.OccurredAt.UTC()

		if metaStr.Valid && metaStr.String != "" {
			var v any
			if err := json.Unmarshal([]byte(metaStr.String), &v); err == nil {
				ev.Metadata = v
			} else {
				ev.Metadata = metaStr.String
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
