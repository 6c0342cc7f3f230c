// Package models defines the domain types for daymark.
package models

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/daymark/internal/apperr"
)

// MinutesPerDay bounds Event.Minutes: valid values are [0, MinutesPerDay).
const MinutesPerDay = 24 * 60

// Event is a titled, timed, coloured, completable item on a calendar date.
type Event struct {
	ID      int64  `json:"id"`
	Date    Date   `json:"date"`
	Minutes int    `json:"minutes"`
	Title   string `json:"title"`
	Color   Color  `json:"color"`
	Done    bool   `json:"done"`
}

// Validate checks the event invariants. Failures wrap apperr.ErrValidation.
func (e Event) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Date),
		validation.Field(&e.Minutes, validation.Min(0), validation.Max(MinutesPerDay-1)),
		validation.Field(&e.Title, validation.Required),
		validation.Field(&e.Color),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// Time renders the event's time of day as HH:MM.
func (e Event) Time() string {
	return FormatMinutes(e.Minutes)
}

// DayMark is a colour annotation attached to a date.
type DayMark struct {
	Date  Date  `json:"date"`
	Color Color `json:"color"`
}

// Validate checks the mark invariants. Failures wrap apperr.ErrValidation.
func (m DayMark) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Date),
		validation.Field(&m.Color),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// MinutesOf converts a wall-clock hour and minute to minutes since midnight,
// clamping hour to [0,23] and minute to [0,59].
func MinutesOf(hour, minute int) int {
	return clamp(hour, 0, 23)*60 + clamp(minute, 0, 59)
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
