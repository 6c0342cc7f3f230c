// Package store provides the persistent table storage for events and day marks.
package store

import (
	"context"
	"sync"
)

// Table names a stored record kind. Observers subscribe per table.
type Table string

const (
	TableEvents   Table = "events"
	TableDayMarks Table = "day_marks"
)

// EventRow is a row of the events table.
type EventRow struct {
	ID          int64
	Date        string
	TimeMinutes int
	Title       string
	ColorARGB   int64
	Done        bool
}

// DayMarkRow is a row of the day_marks table.
type DayMarkRow struct {
	Date      string
	ColorARGB int64
}

// Store defines the storage operations the repository depends on.
// Every successful mutation invalidates its table after the write is durable.
type Store interface {
	Events(ctx context.Context) ([]EventRow, error)
	// Event returns the row with id, or apperr.ErrNotFound.
	Event(ctx context.Context, id int64) (EventRow, error)
	// InsertEvent ignores row.ID and returns the assigned identity.
	InsertEvent(ctx context.Context, row EventRow) (int64, error)
	// UpdateEvent replaces the row with the same ID. It returns
	// apperr.ErrNotFound when no such row exists.
	UpdateEvent(ctx context.Context, row EventRow) error
	// DeleteEvent removes the row with id. Missing ids are not an error.
	DeleteEvent(ctx context.Context, id int64) error

	DayMarks(ctx context.Context) ([]DayMarkRow, error)
	// UpsertDayMark inserts or replaces the mark keyed by row.Date.
	UpsertDayMark(ctx context.Context, row DayMarkRow) error
	// DeleteDayMark removes the mark for date. Missing dates are not an error.
	DeleteDayMark(ctx context.Context, date string) error

	// Watch returns a channel that receives a value whenever table changes.
	// Notifications coalesce: a slow reader sees at least one value after
	// any number of changes. The returned func stops the watch.
	Watch(table Table) (<-chan struct{}, func())

	Close() error
}

// Verify implementations satisfy Store at compile time.
var (
	_ Store = (*DB)(nil)
	_ Store = (*Memory)(nil)
)

// notifier fans table invalidations out to watchers.
type notifier struct {
	mu       sync.Mutex
	watchers map[Table]map[uint64]chan struct{}
	nextID   uint64
}

func (n *notifier) Watch(table Table) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.watchers == nil {
		n.watchers = make(map[Table]map[uint64]chan struct{})
	}
	n.nextID++
	id := n.nextID
	if n.watchers[table] == nil {
		n.watchers[table] = make(map[uint64]chan struct{})
	}
	n.watchers[table][id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if ws := n.watchers[table]; ws != nil {
				delete(ws, id)
				if len(ws) == 0 {
					delete(n.watchers, table)
				}
			}
		})
	}
}

// Invalidate notifies every watcher of the given tables.
func (n *notifier) Invalidate(tables ...Table) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range tables {
		for _, ch := range n.watchers[t] {
			select {
			case ch <- struct{}{}:
			default:
				// Already pending; the reader will re-query once.
			}
		}
	}
}
