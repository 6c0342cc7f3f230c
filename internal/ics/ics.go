// Package ics converts events and day marks to and from iCalendar.
//
// Events become VEVENTs with a floating DTSTART (local wall-clock time), a
// COLOR property and STATUS:COMPLETED when done. Day marks become all-day
// VEVENTs in the "day-mark" category so an export can be imported again.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/starford/daymark/internal/models"
)

const (
	productID       = "-//starford//daymark//EN"
	uidDomain       = "daymark"
	dayMarkCategory = "day-mark"

	floatingLayout = "20060102T150405"
	utcLayout      = "20060102T150405Z"
	dateLayout     = "20060102"
)

// Export writes events and marks to w as a single VCALENDAR.
func Export(w io.Writer, events []models.Event, marks []models.DayMark, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	for _, e := range events {
		ve := cal.AddEvent(fmt.Sprintf("event-%d@%s", e.ID, uidDomain))
		ve.SetDtStampTime(now)
		start := e.Date.Time(time.Local).Add(time.Duration(e.Minutes) * time.Minute)
		ve.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
		ve.SetSummary(e.Title)
		ve.SetColor(e.Color.String())
		status := ical.ObjectStatusNeedsAction
		if e.Done {
			status = ical.ObjectStatusCompleted
		}
		ve.SetStatus(status)
	}

	for _, m := range marks {
		ve := cal.AddEvent(fmt.Sprintf("mark-%s@%s", m.Date, uidDomain))
		ve.SetDtStampTime(now)
		ve.SetAllDayStartAt(m.Date.Time(time.Local))
		ve.SetSummary("Day mark")
		ve.AddCategory(dayMarkCategory)
		ve.SetColor(m.Color.String())
	}

	return cal.SerializeTo(w)
}

// Result is the content recovered from an iCalendar payload.
type Result struct {
	Events []models.Event
	Marks  []models.DayMark
	// Skipped counts VEVENTs that could not be mapped.
	Skipped int
}

// Import parses an iCalendar payload. Imported events carry no identity;
// VEVENTs without a start or a title are skipped. Event colours fall back
// to the first palette colour when COLOR is missing or not #rrggbb.
func Import(r io.Reader) (Result, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read ics: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Result{}, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("parse ics: %w", err)
	}

	var res Result
	for _, ve := range cal.Events() {
		start, allDay, err := startOf(ve)
		if err != nil {
			res.Skipped++
			continue
		}

		if isDayMark(ve) {
			c, ok := colorOf(ve)
			if !ok {
				res.Skipped++
				continue
			}
			res.Marks = append(res.Marks, models.DayMark{Date: models.DateOf(start), Color: c})
			continue
		}

		title := ""
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			title = strings.TrimSpace(p.Value)
		}
		if title == "" {
			res.Skipped++
			continue
		}

		e := models.Event{Date: models.DateOf(start), Title: title, Color: models.DefaultPalette[0]}
		if !allDay {
			e.Minutes = models.MinutesOf(start.Hour(), start.Minute())
		}
		if c, ok := colorOf(ve); ok {
			e.Color = c
		}
		if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
			e.Done = strings.EqualFold(strings.TrimSpace(p.Value), string(ical.ObjectStatusCompleted))
		}
		res.Events = append(res.Events, e)
	}
	return res, nil
}

// startOf reads DTSTART as local wall-clock time. UTC values are converted
// to local time; date-only values report allDay.
func startOf(ve *ical.VEvent) (t time.Time, allDay bool, err error) {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return time.Time{}, false, errors.New("missing DTSTART")
	}
	v := strings.TrimSpace(p.Value)

	loc := time.Local
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, lerr := time.LoadLocation(tzs[0]); lerr == nil {
			loc = l
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		t, err = time.Parse(utcLayout, v)
		return t.Local(), false, err
	case strings.Contains(v, "T"):
		t, err = time.ParseInLocation(floatingLayout, v, loc)
		return t.In(time.Local), false, err
	default:
		t, err = time.ParseInLocation(dateLayout, v, time.Local)
		return t, true, err
	}
}

func isDayMark(ve *ical.VEvent) bool {
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if strings.EqualFold(strings.TrimSpace(c), dayMarkCategory) {
				return true
			}
		}
	}
	return false
}

func colorOf(ve *ical.VEvent) (models.Color, bool) {
	p := ve.GetProperty(ical.ComponentPropertyColor)
	if p == nil {
		return 0, false
	}
	c, err := models.ParseColor(p.Value)
	if err != nil {
		return 0, false
	}
	return c, true
}
