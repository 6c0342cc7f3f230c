package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/daymark/internal/apperr"
	"github.com/starford/daymark/internal/calendar"
	"github.com/starford/daymark/internal/clock"
	"github.com/starford/daymark/internal/ics"
	"github.com/starford/daymark/internal/models"
	"github.com/starford/daymark/internal/state"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	ctrl  *state.Controller
	clock clock.Clock
}

// NewHandler creates a new Handler. A nil clk uses the system clock.
func NewHandler(ctrl *state.Controller, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Handler{ctrl: ctrl, clock: clk}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid event id", apperr.ErrValidation)
	}
	return id, nil
}

func pathDate(r *http.Request) (models.Date, error) {
	d, err := models.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		return models.Date{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if err := d.Validate(); err != nil {
		return models.Date{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return d, nil
}

func queryColor(r *http.Request) (*models.Color, error) {
	raw := r.URL.Query().Get("color")
	if raw == "" {
		return nil, nil
	}
	c, err := models.ParseColor(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return &c, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func (h *Handler) snapshot(r *http.Request) ([]models.Event, map[models.Date]models.Color, error) {
	events, err := h.ctrl.Events().Await(r.Context())
	if err != nil {
		return nil, nil, err
	}
	marks, err := h.ctrl.DayMarks().Await(r.Context())
	if err != nil {
		return nil, nil, err
	}
	return events, marks, nil
}

// ListEvents handles GET /api/events.
//
//	@Summary		List all events, or one month's tasks
//	@Tags			events
//	@Produce		json
//	@Param			month	query		string	false	"Month as YYYY-MM"
//	@Param			color	query		string	false	"Colour filter as #rrggbb (with month)"
//	@Success		200		{array}		EventView
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events [get]
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.ctrl.Events().Await(r.Context())
	if err != nil {
		writeError(w, "list events", err)
		return
	}

	if month := r.URL.Query().Get("month"); month != "" {
		ym, err := models.ParseYearMonth(month)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		filter, err := queryColor(r)
		if err != nil {
			writeError(w, "list events", err)
			return
		}
		events = calendar.MonthTasks(events, ym, filter)
	}
	writeSnapshot(w, r, eventViews(events))
}

// GetEvent handles GET /api/events/{id}.
//
//	@Summary		Get a single event
//	@Tags			events
//	@Produce		json
//	@Param			id	path		int	true	"Event id"
//	@Success		200	{object}	EventView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id} [get]
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, "get event", err)
		return
	}
	e, err := h.ctrl.Event(r.Context(), id)
	if err != nil {
		writeError(w, "get event", err)
		return
	}
	writeSnapshot(w, r, EventView{Event: e, Time: e.Time()})
}

// CreateEvent handles POST /api/events.
//
//	@Summary		Schedule creation of an event
//	@Tags			events
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EventRequest	true	"Event to create"
//	@Success		202		"Accepted"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events [post]
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	err := h.ctrl.AddEvent(req.Date, models.MinutesOf(req.Hour, req.Minute), req.Title, req.color())
	if err != nil {
		writeError(w, "create event", err)
		return
	}
	accepted(w)
}

// UpdateEvent handles PUT /api/events/{id}.
//
//	@Summary		Schedule a full replace of an event
//	@Tags			events
//	@Accept			json
//	@Param			id		path	int				true	"Event id"
//	@Param			body	body	EventRequest	true	"Replacement event"
//	@Success		202		"Accepted"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id} [put]
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, "update event", err)
		return
	}
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	e := models.Event{
		ID:      id,
		Date:    req.Date,
		Minutes: models.MinutesOf(req.Hour, req.Minute),
		Title:   req.Title,
		Color:   req.color(),
		Done:    req.Done,
	}
	if err := h.ctrl.UpdateEvent(e); err != nil {
		writeError(w, "update event", err)
		return
	}
	accepted(w)
}

// DeleteEvent handles DELETE /api/events/{id}.
//
//	@Summary		Schedule removal of an event
//	@Tags			events
//	@Param			id	path	int	true	"Event id"
//	@Success		202	"Accepted"
//	@Security		BearerAuth
//	@Router			/events/{id} [delete]
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, "delete event", err)
		return
	}
	if err := h.ctrl.DeleteEvent(id); err != nil {
		writeError(w, "delete event", err)
		return
	}
	accepted(w)
}

// ToggleEvent handles POST /api/events/{id}/toggle.
//
//	@Summary		Schedule flipping an event's done flag
//	@Tags			events
//	@Param			id	path	int	true	"Event id"
//	@Success		202	"Accepted"
//	@Security		BearerAuth
//	@Router			/events/{id}/toggle [post]
func (h *Handler) ToggleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, "toggle event", err)
		return
	}
	if err := h.ctrl.ToggleDone(id); err != nil {
		writeError(w, "toggle event", err)
		return
	}
	accepted(w)
}

// GetDay handles GET /api/days/{date}.
//
//	@Summary		Get a day's mark and events, open items first
//	@Tags			days
//	@Produce		json
//	@Param			date	path		string	true	"Date as YYYY-MM-DD"
//	@Success		200		{object}	DayResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/days/{date} [get]
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		writeError(w, "get day", err)
		return
	}
	events, marks, err := h.snapshot(r)
	if err != nil {
		writeError(w, "get day", err)
		return
	}
	resp := DayResponse{Date: date, Events: eventViews(calendar.DayEvents(events, date))}
	if c, ok := marks[date]; ok {
		resp.Mark = &c
	}
	writeSnapshot(w, r, resp)
}

// SetMark handles PUT /api/days/{date}/mark.
//
//	@Summary		Schedule setting or clearing a day mark
//	@Tags			days
//	@Accept			json
//	@Param			date	path	string		true	"Date as YYYY-MM-DD"
//	@Param			body	body	MarkRequest	true	"Mark colour or null"
//	@Success		202		"Accepted"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/days/{date}/mark [put]
func (h *Handler) SetMark(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		writeError(w, "set mark", err)
		return
	}
	var req MarkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.ctrl.SetDayMark(date, req.Color); err != nil {
		writeError(w, "set mark", err)
		return
	}
	accepted(w)
}

// ClearMark handles DELETE /api/days/{date}/mark.
//
//	@Summary		Schedule clearing a day mark
//	@Tags			days
//	@Param			date	path	string	true	"Date as YYYY-MM-DD"
//	@Success		202		"Accepted"
//	@Security		BearerAuth
//	@Router			/days/{date}/mark [delete]
func (h *Handler) ClearMark(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		writeError(w, "clear mark", err)
		return
	}
	if err := h.ctrl.SetDayMark(date, nil); err != nil {
		writeError(w, "clear mark", err)
		return
	}
	accepted(w)
}

// ListMarks handles GET /api/marks.
//
//	@Summary		Get every day mark keyed by date
//	@Tags			days
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/marks [get]
func (h *Handler) ListMarks(w http.ResponseWriter, r *http.Request) {
	marks, err := h.ctrl.DayMarks().Await(r.Context())
	if err != nil {
		writeError(w, "list marks", err)
		return
	}
	writeSnapshot(w, r, marks)
}

// GetMonth handles GET /api/months/{month}.
//
//	@Summary		Get a decorated month grid with its tasks
//	@Tags			months
//	@Produce		json
//	@Param			month	path		string	true	"Month as YYYY-MM"
//	@Param			color	query		string	false	"Task colour filter as #rrggbb"
//	@Success		200		{object}	MonthResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/months/{month} [get]
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	ym, err := models.ParseYearMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	filter, err := queryColor(r)
	if err != nil {
		writeError(w, "get month", err)
		return
	}
	events, marks, err := h.snapshot(r)
	if err != nil {
		writeError(w, "get month", err)
		return
	}

	all := calendar.MonthTasks(events, ym, nil)
	tasks := all
	if filter != nil {
		tasks = calendar.MonthTasks(events, ym, filter)
	}
	days := calendar.DecorateGrid(calendar.MonthGrid(ym), events, marks, clock.Today(h.clock))
	writeSnapshot(w, r, MonthResponse{
		Month:  ym,
		Prev:   ym.Prev(),
		Next:   ym.Next(),
		Cells:  cellViews(days),
		Tasks:  eventViews(tasks),
		Colors: nonNilColors(calendar.MonthColors(all)),
	})
}

// ExportICS handles GET /api/calendar.ics.
//
//	@Summary		Export all events and marks as iCalendar
//	@Tags			export
//	@Produce		text/calendar
//	@Success		200
//	@Security		BearerAuth
//	@Router			/calendar.ics [get]
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	events, marks, err := h.snapshot(r)
	if err != nil {
		writeError(w, "export ics", err)
		return
	}
	var buf bytes.Buffer
	if err := ics.Export(&buf, events, calendar.MarkList(marks), h.clock.Now()); err != nil {
		slog.Error("export ics failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="daymark.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
