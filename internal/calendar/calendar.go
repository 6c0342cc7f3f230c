// Package calendar derives month grids and task lists from event snapshots.
// Every function is pure and leaves its inputs unmodified.
package calendar

import (
	"slices"

	"github.com/starford/daymark/internal/models"
)

// GridCells is the fixed size of a month grid: six Monday-first weeks.
const GridCells = 42

// MaxDecorations caps the colours shown under a single day.
const MaxDecorations = 3

// Cell is one slot of a month grid. Placeholder cells have a zero Date.
type Cell struct {
	Date models.Date
}

// Empty reports whether c is a placeholder outside the month.
func (c Cell) Empty() bool { return c.Date.IsZero() }

// MonthGrid lays ym out over GridCells cells starting on Monday: placeholders
// up to the weekday of the 1st, then every day of the month, then trailing
// placeholders.
func MonthGrid(ym models.YearMonth) []Cell {
	grid := make([]Cell, GridCells)
	first := ym.First()
	lead := first.ISOWeekday() - 1
	for i := range ym.Days() {
		grid[lead+i] = Cell{Date: first.AddDays(i)}
	}
	return grid
}

// GroupByDate buckets events by date, keeping snapshot order within a day.
func GroupByDate(events []models.Event) map[models.Date][]models.Event {
	out := make(map[models.Date][]models.Event)
	for _, e := range events {
		out[e.Date] = append(out[e.Date], e)
	}
	return out
}

// DecorationColors returns the distinct colours of events in first-seen
// order, at most MaxDecorations of them.
func DecorationColors(events []models.Event) []models.Color {
	return distinctColors(events, MaxDecorations)
}

// MonthColors returns every distinct colour used by tasks, in first-seen
// order. It is the palette offered for filtering a month task list.
func MonthColors(tasks []models.Event) []models.Color {
	return distinctColors(tasks, 0)
}

func distinctColors(events []models.Event, limit int) []models.Color {
	var out []models.Color
	seen := make(map[models.Color]struct{})
	for _, e := range events {
		if _, ok := seen[e.Color]; ok {
			continue
		}
		seen[e.Color] = struct{}{}
		out = append(out, e.Color)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// MonthTasks returns the events dated within ym ordered by (date, minutes).
// A non-nil filter keeps only events of exactly that colour.
func MonthTasks(events []models.Event, ym models.YearMonth, filter *models.Color) []models.Event {
	var out []models.Event
	for _, e := range events {
		if !ym.Contains(e.Date) {
			continue
		}
		if filter != nil && e.Color != *filter {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b models.Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.Minutes - b.Minutes
	})
	return out
}

// DayEvents returns the events on date with open items first, each group
// ordered by time of day.
func DayEvents(events []models.Event, date models.Date) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.Date == date {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Event) int {
		if a.Done != b.Done {
			if a.Done {
				return 1
			}
			return -1
		}
		return a.Minutes - b.Minutes
	})
	return out
}

// DayView is a grid cell enriched for display.
type DayView struct {
	Cell
	// Mark is the day's mark colour, nil when unmarked.
	Mark   *models.Color
	Colors []models.Color
	Today  bool
}

// DecorateGrid attaches marks, decoration colours and the today flag to
// every non-placeholder cell of grid.
func DecorateGrid(grid []Cell, events []models.Event, marks map[models.Date]models.Color, today models.Date) []DayView {
	byDate := GroupByDate(events)
	out := make([]DayView, len(grid))
	for i, cell := range grid {
		out[i].Cell = cell
		if cell.Empty() {
			continue
		}
		if c, ok := marks[cell.Date]; ok {
			out[i].Mark = &c
		}
		out[i].Colors = DecorationColors(byDate[cell.Date])
		out[i].Today = cell.Date == today
	}
	return out
}

// MarkList flattens the date to colour map into marks ordered by date.
func MarkList(marks map[models.Date]models.Color) []models.DayMark {
	out := make([]models.DayMark, 0, len(marks))
	for d, c := range marks {
		out = append(out, models.DayMark{Date: d, Color: c})
	}
	slices.SortFunc(out, func(a, b models.DayMark) int { return a.Date.Compare(b.Date) })
	return out
}
