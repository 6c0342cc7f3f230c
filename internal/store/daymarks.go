package store

import (
	"context"
	"fmt"
)

// DayMarks returns every day mark ordered by date.
func (db *DB) DayMarks(ctx context.Context) ([]DayMarkRow, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT date, color_argb FROM day_marks ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("store: list day marks: %w", err)
	}
	defer rows.Close()

	var out []DayMarkRow
	for rows.Next() {
		var r DayMarkRow
		if err := rows.Scan(&r.Date, &r.ColorARGB); err != nil {
			return nil, fmt.Errorf("store: scan day mark: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertDayMark inserts the mark or replaces the colour of an existing one.
func (db *DB) UpsertDayMark(ctx context.Context, row DayMarkRow) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO day_marks (date, color_argb)
		VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET
			color_argb = excluded.color_argb
	`, row.Date, row.ColorARGB)
	if err != nil {
		return fmt.Errorf("store: upsert day mark: %w", err)
	}
	db.Invalidate(TableDayMarks)
	return nil
}

// DeleteDayMark removes the mark for date.
func (db *DB) DeleteDayMark(ctx context.Context, date string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM day_marks WHERE date = ?`, date)
	if err != nil {
		return fmt.Errorf("store: delete day mark: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.Invalidate(TableDayMarks)
	}
	return nil
}
