package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	hub "github.com/beaconhub/beacon/internal"
)

// InsertSessions batch-inserts finished-stream session records.
func (s *Store) InsertSessions(ctx context.Context, records []hub.SessionRecord) error {
	if len(records) == 0 {
		return nil
	}

	// cols must match the number of columns in the INSERT below.
	// Single multi-row INSERT avoids N round-trips for large batches.
	const cols = 7
	placeholders := make([]string, len(records))
	args := make([]any, 0, len(records)*cols)

	for i, r := range records {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			r.ID, r.Channel,
			r.EventsSent, r.HeartbeatsSent, r.DurationMs,
			r.RequestID, r.StartedAt.UTC().Format(time.RFC3339),
		)
	}

	query := `INSERT INTO sessions
		(id, channel, events_sent, heartbeats_sent, duration_ms, request_id, started_at)
		VALUES ` + strings.Join(placeholders, ", ")

	_, err := s.write.ExecContext(ctx, query, args...)
	return err
}

// QuerySessions returns session records matching the filter, newest first.
func (s *Store) QuerySessions(ctx context.Context, f hub.SessionFilter) ([]hub.SessionRecord, error) {
	var conds []string
	var args []any
	if f.Channel != "" {
		conds = append(conds, "channel = ?")
		args = append(args, f.Channel)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := s.read.QueryContext(ctx,
		`SELECT id, channel, events_sent, heartbeats_sent, duration_ms, request_id, started_at
		FROM sessions`+where+` ORDER BY started_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hub.SessionRecord
	for rows.Next() {
		var r hub.SessionRecord
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Channel, &r.EventsSent, &r.HeartbeatsSent,
			&r.DurationMs, &r.RequestID, &startedAt); err != nil {
			return nil, err
		}
		r.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChannelTotals aggregates finished sessions per channel.
func (s *Store) ChannelTotals(ctx context.Context) ([]hub.ChannelTotal, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT channel, COUNT(*), COALESCE(SUM(events_sent), 0)
		FROM sessions GROUP BY channel ORDER BY channel`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hub.ChannelTotal
	for rows.Next() {
		var t hub.ChannelTotal
		if err := rows.Scan(&t.Channel, &t.Sessions, &t.EventsSent); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
