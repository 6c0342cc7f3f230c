package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/daymark/internal/apperr"
)

// Events returns every event row ordered by id.
func (db *DB) Events(ctx context.Context) ([]EventRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, date, time_minutes, title, color_argb, done
		FROM events
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.ID, &r.Date, &r.TimeMinutes, &r.Title, &r.ColorARGB, &r.Done); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Event returns the event row with id.
func (db *DB) Event(ctx context.Context, id int64) (EventRow, error) {
	var r EventRow
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, date, time_minutes, title, color_argb, done
		FROM events
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Date, &r.TimeMinutes, &r.Title, &r.ColorARGB, &r.Done)
	if errors.Is(err, sql.ErrNoRows) {
		return EventRow{}, apperr.ErrNotFound
	}
	if err != nil {
		return EventRow{}, fmt.Errorf("store: get event: %w", err)
	}
	return r, nil
}

// InsertEvent inserts a new event and returns its generated id.
func (db *DB) InsertEvent(ctx context.Context, row EventRow) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO events (date, time_minutes, title, color_argb, done)
		VALUES (?, ?, ?, ?, ?)
	`, row.Date, row.TimeMinutes, row.Title, row.ColorARGB, row.Done)
	if err != nil {
		return 0, fmt.Errorf("store: insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert event id: %w", err)
	}
	db.Invalidate(TableEvents)
	return id, nil
}

// UpdateEvent replaces every column of the event with row.ID.
func (db *DB) UpdateEvent(ctx context.Context, row EventRow) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE events
		SET date = ?, time_minutes = ?, title = ?, color_argb = ?, done = ?
		WHERE id = ?
	`, row.Date, row.TimeMinutes, row.Title, row.ColorARGB, row.Done, row.ID)
	if err != nil {
		return fmt.Errorf("store: update event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update event: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	db.Invalidate(TableEvents)
	return nil
}

// DeleteEvent removes the event with id.
func (db *DB) DeleteEvent(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.Invalidate(TableEvents)
	}
	return nil
}
