package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/daymark/internal/calendar"
	"github.com/starford/daymark/internal/models"
)

// EventRequest is the request body for creating or replacing an event.
// Hour and minute are clamped to a valid time of day.
type EventRequest struct {
	Date   models.Date   `json:"date" example:"2024-03-15" validate:"required"`
	Hour   int           `json:"hour" example:"9"`
	Minute int           `json:"minute" example:"0"`
	Title  string        `json:"title" example:"Standup" validate:"required"`
	Color  *models.Color `json:"color,omitempty" example:"#ef5350"`
	Done   bool          `json:"done"`
}

// Validate checks the fields that clamping cannot repair.
func (r *EventRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Date),
		validation.Field(&r.Title, validation.By(notBlank)),
		validation.Field(&r.Color),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "must not be blank")
	}
	return nil
}

func (r *EventRequest) color() models.Color {
	if r.Color == nil {
		return models.DefaultPalette[0]
	}
	return *r.Color
}

// MarkRequest is the request body for setting a day mark. A null colour
// clears the mark.
type MarkRequest struct {
	Color *models.Color `json:"color" example:"#66bb6a"`
}

// EventView is an event with its time of day rendered as HH:MM.
type EventView struct {
	models.Event
	Time string `json:"time" example:"09:00"`
}

func eventViews(events []models.Event) []EventView {
	out := make([]EventView, len(events))
	for i, e := range events {
		out[i] = EventView{Event: e, Time: e.Time()}
	}
	return out
}

// DayResponse is the detail view of one date.
type DayResponse struct {
	Date   models.Date   `json:"date"`
	Mark   *models.Color `json:"mark"`
	Events []EventView   `json:"events" validate:"required"`
}

// CellView is one grid cell. Placeholders have a null date.
type CellView struct {
	Date   *models.Date   `json:"date"`
	Mark   *models.Color  `json:"mark"`
	Colors []models.Color `json:"colors"`
	Today  bool           `json:"today"`
}

// MonthResponse is a decorated month grid with the month's tasks.
// Prev and Next name the neighbouring months for paging.
type MonthResponse struct {
	Month  models.YearMonth `json:"month"`
	Prev   models.YearMonth `json:"prev"`
	Next   models.YearMonth `json:"next"`
	Cells  []CellView       `json:"cells" validate:"required"`
	Tasks  []EventView      `json:"tasks" validate:"required"`
	Colors []models.Color   `json:"colors" validate:"required"`
}

func cellViews(days []calendar.DayView) []CellView {
	out := make([]CellView, len(days))
	for i, d := range days {
		colors := d.Colors
		if colors == nil {
			colors = []models.Color{}
		}
		out[i] = CellView{Mark: d.Mark, Colors: colors, Today: d.Today}
		if !d.Empty() {
			date := d.Date
			out[i].Date = &date
		}
	}
	return out
}

func nonNilColors(c []models.Color) []models.Color {
	if c == nil {
		return []models.Color{}
	}
	return c
}
