package repository

import (
	"github.com/starford/daymark/internal/models"
	"github.com/starford/daymark/internal/store"
)

func eventFromRow(row store.EventRow) (models.Event, error) {
	date, err := models.ParseDate(row.Date)
	if err != nil {
		return models.Event{}, err
	}
	return models.Event{
		ID:      row.ID,
		Date:    date,
		Minutes: row.TimeMinutes,
		Title:   row.Title,
		Color:   models.ColorFromARGB(row.ColorARGB),
		Done:    row.Done,
	}, nil
}

func eventToRow(e models.Event) store.EventRow {
	return store.EventRow{
		ID:          e.ID,
		Date:        e.Date.String(),
		TimeMinutes: e.Minutes,
		Title:       e.Title,
		ColorARGB:   e.Color.ARGB(),
		Done:        e.Done,
	}
}

func dayMarkFromRow(row store.DayMarkRow) (models.DayMark, error) {
	date, err := models.ParseDate(row.Date)
	if err != nil {
		return models.DayMark{}, err
	}
	return models.DayMark{Date: date, Color: models.ColorFromARGB(row.ColorARGB)}, nil
}

func dayMarkToRow(m models.DayMark) store.DayMarkRow {
	return store.DayMarkRow{Date: m.Date.String(), ColorARGB: m.Color.ARGB()}
}
