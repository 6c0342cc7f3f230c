package store

import (
	"context"
	"sort"
	"sync"

	"github.com/starford/daymark/internal/apperr"
)

// Memory is an in-process Store. Contents are lost on Close.
// It backs tests and runs configured with an empty sqlite.path.
type Memory struct {
	notifier

	mu       sync.RWMutex
	events   map[int64]EventRow
	marks    map[string]DayMarkRow
	lastID   int64
	fail     error
	failRead error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events: make(map[int64]EventRow),
		marks:  make(map[string]DayMarkRow),
	}
}

// FailWrites makes every later mutating call return err. A nil err restores
// normal behaviour.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// FailReads makes every later query return err. A nil err restores normal
// behaviour.
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	m.failRead = err
	m.mu.Unlock()
}

func (m *Memory) Events(_ context.Context) ([]EventRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failRead != nil {
		return nil, m.failRead
	}
	out := make([]EventRow, 0, len(m.events))
	for _, r := range m.events {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Event(_ context.Context, id int64) (EventRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failRead != nil {
		return EventRow{}, m.failRead
	}
	r, ok := m.events[id]
	if !ok {
		return EventRow{}, apperr.ErrNotFound
	}
	return r, nil
}

func (m *Memory) InsertEvent(_ context.Context, row EventRow) (int64, error) {
	m.mu.Lock()
	if err := m.fail; err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.lastID++
	row.ID = m.lastID
	m.events[row.ID] = row
	m.mu.Unlock()

	m.Invalidate(TableEvents)
	return row.ID, nil
}

func (m *Memory) UpdateEvent(_ context.Context, row EventRow) error {
	m.mu.Lock()
	if err := m.fail; err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.events[row.ID]; !ok {
		m.mu.Unlock()
		return apperr.ErrNotFound
	}
	m.events[row.ID] = row
	m.mu.Unlock()

	m.Invalidate(TableEvents)
	return nil
}

func (m *Memory) DeleteEvent(_ context.Context, id int64) error {
	m.mu.Lock()
	if err := m.fail; err != nil {
		m.mu.Unlock()
		return err
	}
	_, ok := m.events[id]
	delete(m.events, id)
	m.mu.Unlock()

	if ok {
		m.Invalidate(TableEvents)
	}
	return nil
}

func (m *Memory) DayMarks(_ context.Context) ([]DayMarkRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failRead != nil {
		return nil, m.failRead
	}
	out := make([]DayMarkRow, 0, len(m.marks))
	for _, r := range m.marks {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *Memory) UpsertDayMark(_ context.Context, row DayMarkRow) error {
	m.mu.Lock()
	if err := m.fail; err != nil {
		m.mu.Unlock()
		return err
	}
	m.marks[row.Date] = row
	m.mu.Unlock()

	m.Invalidate(TableDayMarks)
	return nil
}

func (m *Memory) DeleteDayMark(_ context.Context, date string) error {
	m.mu.Lock()
	if err := m.fail; err != nil {
		m.mu.Unlock()
		return err
	}
	_, ok := m.marks[date]
	delete(m.marks, date)
	m.mu.Unlock()

	if ok {
		m.Invalidate(TableDayMarks)
	}
	return nil
}

func (m *Memory) Close() error { return nil }
