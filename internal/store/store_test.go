package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/daymark/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "daymark-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() {
		os.Remove(f.Name())
		os.Remove(f.Name() + "-wal")
		os.Remove(f.Name() + "-shm")
	})

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// forEachStore runs fn against the SQLite and in-memory implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, testDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

func notified(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("events table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM day_marks`).Scan(&count); err != nil {
		t.Fatalf("day_marks table missing: %v", err)
	}
}

func TestSchemaRejectsOutOfRangeMinutes(t *testing.T) {
	db := testDB(t)
	_, err := db.InsertEvent(context.Background(), EventRow{Date: "2024-03-15", TimeMinutes: 1440, Title: "late"})
	if err == nil {
		t.Fatal("expected CHECK constraint failure for 1440 minutes")
	}
}

func TestInsertAssignsIdentity(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id1, err := s.InsertEvent(ctx, EventRow{ID: 99, Date: "2024-03-15", TimeMinutes: 540, Title: "Standup", ColorARGB: 0xFFFF0000})
		if err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
		id2, err := s.InsertEvent(ctx, EventRow{ID: 99, Date: "2024-03-16", TimeMinutes: 60, Title: "Other"})
		if err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
		if id1 <= 0 || id2 <= 0 || id1 == id2 {
			t.Fatalf("ids = %d, %d; want distinct positive", id1, id2)
		}

		rows, err := s.Events(ctx)
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("len(rows) = %d, want 2", len(rows))
		}
		got := rows[0]
		if got.ID != id1 || got.Date != "2024-03-15" || got.TimeMinutes != 540 || got.Title != "Standup" || got.ColorARGB != 0xFFFF0000 || got.Done {
			t.Errorf("row = %+v", got)
		}
	})
}

func TestEventByID(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, err := s.InsertEvent(ctx, EventRow{Date: "2024-03-15", TimeMinutes: 540, Title: "Standup", ColorARGB: 0xFFFF0000, Done: true})
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.Event(ctx, id)
		if err != nil {
			t.Fatalf("Event: %v", err)
		}
		if got.ID != id || got.Title != "Standup" || got.TimeMinutes != 540 || !got.Done {
			t.Errorf("row = %+v", got)
		}
		if _, err := s.Event(ctx, id+1); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("missing id err = %v, want ErrNotFound", err)
		}
	})
}

func TestUpdateEvent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, _ := s.InsertEvent(ctx, EventRow{Date: "2024-03-15", TimeMinutes: 540, Title: "Old"})

		if err := s.UpdateEvent(ctx, EventRow{ID: id, Date: "2024-03-16", TimeMinutes: 600, Title: "New", Done: true}); err != nil {
			t.Fatalf("UpdateEvent: %v", err)
		}
		rows, _ := s.Events(ctx)
		if len(rows) != 1 || rows[0].Title != "New" || !rows[0].Done || rows[0].Date != "2024-03-16" {
			t.Errorf("rows = %+v", rows)
		}

		err := s.UpdateEvent(ctx, EventRow{ID: id + 100, Date: "2024-03-16", Title: "Ghost"})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("update missing = %v, want ErrNotFound", err)
		}
	})
}

func TestDeleteEventIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, _ := s.InsertEvent(ctx, EventRow{Date: "2024-03-15", Title: "Bye"})

		ch, stop := s.Watch(TableEvents)
		defer stop()

		if err := s.DeleteEvent(ctx, id); err != nil {
			t.Fatalf("DeleteEvent: %v", err)
		}
		if !notified(ch) {
			t.Error("delete should notify watchers")
		}
		if err := s.DeleteEvent(ctx, id); err != nil {
			t.Fatalf("second DeleteEvent: %v", err)
		}
		if notified(ch) {
			t.Error("deleting a missing id should not notify")
		}
		rows, _ := s.Events(ctx)
		if len(rows) != 0 {
			t.Errorf("rows after delete = %d", len(rows))
		}
	})
}

func TestDayMarkUpsertAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.UpsertDayMark(ctx, DayMarkRow{Date: "2024-03-15", ColorARGB: 0xFFEF5350}); err != nil {
			t.Fatalf("UpsertDayMark: %v", err)
		}
		if err := s.UpsertDayMark(ctx, DayMarkRow{Date: "2024-03-15", ColorARGB: 0xFF66BB6A}); err != nil {
			t.Fatalf("UpsertDayMark replace: %v", err)
		}
		marks, _ := s.DayMarks(ctx)
		if len(marks) != 1 || marks[0].ColorARGB != 0xFF66BB6A {
			t.Fatalf("marks = %+v", marks)
		}

		if err := s.DeleteDayMark(ctx, "2024-03-15"); err != nil {
			t.Fatalf("DeleteDayMark: %v", err)
		}
		if err := s.DeleteDayMark(ctx, "2024-03-15"); err != nil {
			t.Fatalf("second DeleteDayMark: %v", err)
		}
		marks, _ = s.DayMarks(ctx)
		if len(marks) != 0 {
			t.Errorf("marks after delete = %+v", marks)
		}
	})
}

func TestWatchIsPerTable(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		events, stopEvents := s.Watch(TableEvents)
		defer stopEvents()
		marks, stopMarks := s.Watch(TableDayMarks)
		defer stopMarks()

		_ = s.UpsertDayMark(ctx, DayMarkRow{Date: "2024-01-01", ColorARGB: 0xFF000000})
		if !notified(marks) {
			t.Error("day mark watcher not notified")
		}
		if notified(events) {
			t.Error("events watcher notified for a day mark write")
		}
	})
}

func TestWatchCoalesces(t *testing.T) {
	s := NewMemory()
	ch, stop := s.Watch(TableEvents)
	defer stop()

	for i := 0; i < 5; i++ {
		_, _ = s.InsertEvent(context.Background(), EventRow{Date: "2024-01-01", Title: "x"})
	}
	if !notified(ch) {
		t.Fatal("expected a notification")
	}
	if notified(ch) {
		t.Error("burst of writes should coalesce into one pending notification")
	}
}

func TestWatchStop(t *testing.T) {
	s := NewMemory()
	ch, stop := s.Watch(TableEvents)
	stop()
	stop()

	_, _ = s.InsertEvent(context.Background(), EventRow{Date: "2024-01-01", Title: "x"})
	if notified(ch) {
		t.Error("stopped watcher should not be notified")
	}
}

func TestFailedWriteDoesNotNotify(t *testing.T) {
	s := NewMemory()
	boom := errors.New("disk full")
	s.FailWrites(boom)

	ch, stop := s.Watch(TableEvents)
	defer stop()

	if _, err := s.InsertEvent(context.Background(), EventRow{Date: "2024-01-01", Title: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if notified(ch) {
		t.Error("failed write must not notify")
	}
}
