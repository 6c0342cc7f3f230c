package calendar

import (
	"slices"
	"testing"
	"time"

	"github.com/starford/daymark/internal/models"
)

func ev(id int64, date models.Date, minutes int, color models.Color, done bool) models.Event {
	return models.Event{ID: id, Date: date, Minutes: minutes, Title: "t", Color: color, Done: done}
}

func TestMonthGridShape(t *testing.T) {
	for year := 2023; year <= 2025; year++ {
		for m := time.January; m <= time.December; m++ {
			ym := models.YearMonth{Year: year, Month: m}
			grid := MonthGrid(ym)
			if len(grid) != GridCells {
				t.Fatalf("%s: %d cells, want %d", ym, len(grid), GridCells)
			}

			lead := ym.First().ISOWeekday() - 1
			days := 0
			firstFilled := -1
			for i, c := range grid {
				if c.Empty() {
					continue
				}
				if firstFilled < 0 {
					firstFilled = i
				}
				days++
			}
			if days != ym.Days() {
				t.Errorf("%s: %d date cells, want %d", ym, days, ym.Days())
			}
			if firstFilled != lead {
				t.Errorf("%s: first date at %d, want %d", ym, firstFilled, lead)
			}
		}
	}
}

func TestMonthGridJuly2024(t *testing.T) {
	grid := MonthGrid(models.YearMonth{Year: 2024, Month: time.July})

	if grid[0].Date != models.NewDate(2024, time.July, 1) {
		t.Errorf("first cell = %v, want 2024-07-01", grid[0].Date)
	}
	if grid[30].Date != models.NewDate(2024, time.July, 31) {
		t.Errorf("cell 30 = %v, want 2024-07-31", grid[30].Date)
	}
	trailing := 0
	for _, c := range grid[31:] {
		if !c.Empty() {
			t.Fatalf("unexpected date %v after month end", c.Date)
		}
		trailing++
	}
	if trailing != 11 {
		t.Errorf("trailing placeholders = %d, want 11", trailing)
	}
}

func TestMonthGridSundayStart(t *testing.T) {
	// 2024-09-01 is a Sunday: six leading placeholders.
	grid := MonthGrid(models.YearMonth{Year: 2024, Month: time.September})
	for i := range 6 {
		if !grid[i].Empty() {
			t.Fatalf("cell %d should be empty", i)
		}
	}
	if grid[6].Date != models.NewDate(2024, time.September, 1) {
		t.Errorf("cell 6 = %v, want 2024-09-01", grid[6].Date)
	}
}

func TestMonthTasksOrdering(t *testing.T) {
	mar15 := models.NewDate(2024, time.March, 15)
	mar1 := models.NewDate(2024, time.March, 1)
	events := []models.Event{
		ev(1, mar15, 540, 0xEF5350, false),
		ev(2, models.NewDate(2024, time.April, 1), 0, 0xEF5350, false),
		ev(3, mar1, 600, 0x29B6F6, false),
	}

	got := MonthTasks(events, models.YearMonth{Year: 2024, Month: time.March}, nil)
	if len(got) != 2 || got[0].Date != mar1 || got[1].Date != mar15 {
		t.Fatalf("tasks = %+v, want [03-01, 03-15]", got)
	}
	if events[0].ID != 1 {
		t.Error("input slice was reordered")
	}
}

func TestMonthTasksSameDayByMinutes(t *testing.T) {
	d := models.NewDate(2024, time.March, 3)
	events := []models.Event{ev(1, d, 900, 0, false), ev(2, d, 60, 0, false), ev(3, d, 900, 0, false)}

	got := MonthTasks(events, d.YearMonth(), nil)
	ids := []int64{got[0].ID, got[1].ID, got[2].ID}
	if !slices.Equal(ids, []int64{2, 1, 3}) {
		t.Errorf("ids = %v, want [2 1 3]", ids)
	}
}

func TestMonthTasksColorFilter(t *testing.T) {
	d := models.NewDate(2024, time.March, 3)
	red, blue := models.Color(0xEF5350), models.Color(0x29B6F6)
	events := []models.Event{ev(1, d, 0, red, false), ev(2, d, 10, blue, false), ev(3, d, 20, red, true)}

	got := MonthTasks(events, d.YearMonth(), &red)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("filtered = %+v", got)
	}

	green := models.Color(0x66BB6A)
	if got := MonthTasks(events, d.YearMonth(), &green); len(got) != 0 {
		t.Errorf("unused colour matched %d tasks", len(got))
	}
}

func TestDayEventsOpenFirst(t *testing.T) {
	d := models.NewDate(2024, time.March, 3)
	events := []models.Event{
		ev(1, d, 480, 0, true),
		ev(2, d, 900, 0, false),
		ev(3, d, 60, 0, false),
		ev(4, d.AddDays(1), 0, 0, false),
		ev(5, d, 30, 0, true),
	}

	got := DayEvents(events, d)
	var ids []int64
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	if !slices.Equal(ids, []int64{3, 2, 5, 1}) {
		t.Errorf("ids = %v, want [3 2 5 1]", ids)
	}
}

func TestDecorationColorsCap(t *testing.T) {
	d := models.NewDate(2024, time.March, 3)
	events := []models.Event{
		ev(1, d, 0, 0xEF5350, false),
		ev(2, d, 0, 0xEF5350, false),
		ev(3, d, 0, 0xAB47BC, false),
		ev(4, d, 0, 0x5C6BC0, false),
		ev(5, d, 0, 0x29B6F6, false),
	}
	got := DecorationColors(events)
	want := []models.Color{0xEF5350, 0xAB47BC, 0x5C6BC0}
	if !slices.Equal(got, want) {
		t.Errorf("decorations = %v, want %v", got, want)
	}

	if all := MonthColors(events); len(all) != 4 {
		t.Errorf("month colours = %v, want 4 distinct", all)
	}
	if DecorationColors(nil) != nil {
		t.Error("no events should give no decorations")
	}
}

func TestGroupByDate(t *testing.T) {
	a, b := models.NewDate(2024, time.March, 1), models.NewDate(2024, time.March, 2)
	groups := GroupByDate([]models.Event{ev(1, a, 0, 0, false), ev(2, b, 0, 0, false), ev(3, a, 0, 0, false)})
	if len(groups) != 2 || len(groups[a]) != 2 || groups[a][1].ID != 3 || len(groups[b]) != 1 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestDecorateGrid(t *testing.T) {
	ym := models.YearMonth{Year: 2024, Month: time.March}
	grid := MonthGrid(ym)
	mar8 := models.NewDate(2024, time.March, 8)
	mark := models.Color(0xFFCA28)

	views := DecorateGrid(grid,
		[]models.Event{ev(1, mar8, 0, 0xEF5350, false)},
		map[models.Date]models.Color{mar8: mark},
		mar8)

	if len(views) != GridCells {
		t.Fatalf("views = %d, want %d", len(views), GridCells)
	}
	// 2024-03-01 is a Friday: four placeholders, so the 8th sits at index 11.
	v := views[11]
	if v.Date != mar8 || !v.Today || v.Mark == nil || *v.Mark != mark || len(v.Colors) != 1 {
		t.Errorf("view for 03-08 = %+v", v)
	}
	if views[0].Mark != nil || views[0].Today || !views[0].Empty() {
		t.Errorf("placeholder view decorated: %+v", views[0])
	}
	if views[12].Mark != nil || views[12].Today {
		t.Errorf("unmarked day decorated: %+v", views[12])
	}
}

func TestMarkListSortedByDate(t *testing.T) {
	marks := map[models.Date]models.Color{
		models.NewDate(2024, time.March, 20): 0x00FF00,
		models.NewDate(2023, time.December, 31): 0xFF0000,
		models.NewDate(2024, time.March, 1): 0x0000FF,
	}
	got := MarkList(marks)
	if len(got) != 3 {
		t.Fatalf("got %d marks", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Date.Compare(got[i].Date) >= 0 {
			t.Errorf("marks out of order: %v", got)
		}
	}
	if got[0].Color != 0xFF0000 {
		t.Errorf("first mark colour = %s", got[0].Color)
	}
}
