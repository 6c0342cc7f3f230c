// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes daymark calendar tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/daymark/internal/calendar"
	"github.com/starford/daymark/internal/clock"
	"github.com/starford/daymark/internal/models"
	"github.com/starford/daymark/internal/state"
)

// Server wraps the MCP server with daymark tools.
type Server struct {
	mcp   *server.MCPServer
	ctrl  *state.Controller
	clock clock.Clock
}

// New creates a new MCP server with all daymark tools registered.
// A nil clk uses the system clock.
func New(ctrl *state.Controller, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.System{}
	}
	s := &Server{ctrl: ctrl, clock: clk}

	s.mcp = server.NewMCPServer(
		"Daymark",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_month_tasks",
		mcp.WithDescription("List the events of a month ordered by date and time, optionally only those of one colour."),
		mcp.WithString("month", mcp.Required(), mcp.Description("Month as YYYY-MM")),
		mcp.WithString("color", mcp.Description("Optional colour filter as #rrggbb")),
	), s.listMonthTasks)

	s.mcp.AddTool(mcp.NewTool("get_day",
		mcp.WithDescription("Get a day's mark colour and its events, open items first."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
	), s.getDay)

	s.mcp.AddTool(mcp.NewTool("month_grid",
		mcp.WithDescription("Render a Monday-first month calendar. Days marked with a colour end in '*', days with events in '+', both in '#'."),
		mcp.WithString("month", mcp.Required(), mcp.Description("Month as YYYY-MM")),
	), s.monthGrid)

	s.mcp.AddTool(mcp.NewTool("add_event",
		mcp.WithDescription("Add a timed event to a date. Hour and minute are clamped to a valid time of day."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Event title, must not be blank")),
		mcp.WithNumber("hour", mcp.Min(0), mcp.Max(23), mcp.Description("Hour of day, default 0")),
		mcp.WithNumber("minute", mcp.Min(0), mcp.Max(59), mcp.Description("Minute, default 0")),
		mcp.WithString("color", mcp.Description("Colour as #rrggbb, defaults to the first palette colour")),
	), s.addEvent)

	s.mcp.AddTool(mcp.NewTool("update_event",
		mcp.WithDescription("Replace every field of an existing event."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Event id")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Event title")),
		mcp.WithNumber("hour", mcp.Min(0), mcp.Max(23), mcp.Description("Hour of day")),
		mcp.WithNumber("minute", mcp.Min(0), mcp.Max(59), mcp.Description("Minute")),
		mcp.WithString("color", mcp.Description("Colour as #rrggbb")),
		mcp.WithBoolean("done", mcp.Description("Completion flag")),
	), s.updateEvent)

	s.mcp.AddTool(mcp.NewTool("toggle_event",
		mcp.WithDescription("Flip the done flag of an event."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Event id")),
	), s.toggleEvent)

	s.mcp.AddTool(mcp.NewTool("delete_event",
		mcp.WithDescription("Delete an event. Unknown ids are ignored."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Event id")),
	), s.deleteEvent)

	s.mcp.AddTool(mcp.NewTool("set_day_mark",
		mcp.WithDescription("Mark a date with a colour, or clear its mark when color is omitted."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("color", mcp.Description("Colour as #rrggbb; omit to clear")),
	), s.setDayMark)

	s.mcp.AddResource(
		mcp.NewResource("daymark://palette", "Colour Palette",
			mcp.WithResourceDescription("Colours offered for events and day marks."),
			mcp.WithMIMEType("application/json"),
		),
		s.readPalette,
	)

	return s
}

// Serve speaks MCP over the newline-delimited JSON-RPC streams in and out
// until in reaches EOF or ctx is cancelled. Transport errors are logged at
// error level through the default slog handler.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// applied waits for a scheduled mutation so the reply reflects stored state.
// A mutation that failed in storage turns into an error result.
func (s *Server) applied(ctx context.Context, msg string) *mcp.CallToolResult {
	if err := s.ctrl.Sync(ctx); err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(msg)
}

type eventOut struct {
	models.Event
	Time string `json:"time"`
}

func eventsOut(events []models.Event) []eventOut {
	out := make([]eventOut, len(events))
	for i, e := range events {
		out[i] = eventOut{Event: e, Time: e.Time()}
	}
	return out
}

func (s *Server) listMonthTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ym, err := requireMonth(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := optionalColor(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	events, err := s.ctrl.Events().Await(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tasks := calendar.MonthTasks(events, ym, filter)
	if len(tasks) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no events in %s", ym)), nil
	}
	return jsonResult(eventsOut(tasks)), nil
}

func (s *Server) getDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := requireDate(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	events, err := s.ctrl.Events().Await(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	marks, err := s.ctrl.DayMarks().Await(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	day := struct {
		Date   models.Date   `json:"date"`
		Mark   *models.Color `json:"mark"`
		Events []eventOut    `json:"events"`
	}{Date: date, Events: eventsOut(calendar.DayEvents(events, date))}
	if c, ok := marks[date]; ok {
		day.Mark = &c
	}
	return jsonResult(day), nil
}

func (s *Server) monthGrid(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ym, err := requireMonth(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	events, err := s.ctrl.Events().Await(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	marks, err := s.ctrl.DayMarks().Await(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	days := calendar.DecorateGrid(calendar.MonthGrid(ym), events, marks, clock.Today(s.clock))
	return mcp.NewToolResultText(renderGrid(ym, days)), nil
}

func (s *Server) addEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := requireDate(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	color, err := colorOrDefault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	minutes := models.MinutesOf(req.GetInt("hour", 0), req.GetInt("minute", 0))

	if err := s.ctrl.AddEvent(date, minutes, title, color); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.applied(ctx, fmt.Sprintf("added %q on %s at %s", title, date, models.FormatMinutes(minutes))), nil
}

func (s *Server) updateEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := requireDate(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	color, err := colorOrDefault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e := models.Event{
		ID:      id,
		Date:    date,
		Minutes: models.MinutesOf(req.GetInt("hour", 0), req.GetInt("minute", 0)),
		Title:   title,
		Color:   color,
		Done:    req.GetBool("done", false),
	}
	if err := s.ctrl.UpdateEvent(e); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.applied(ctx, fmt.Sprintf("updated event %d", id)), nil
}

func (s *Server) toggleEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ctrl.ToggleDone(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.applied(ctx, fmt.Sprintf("toggled event %d", id)), nil
}

func (s *Server) deleteEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ctrl.DeleteEvent(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.applied(ctx, fmt.Sprintf("deleted event %d", id)), nil
}

func (s *Server) setDayMark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := requireDate(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	color, err := optionalColor(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ctrl.SetDayMark(date, color); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if color == nil {
		return s.applied(ctx, fmt.Sprintf("cleared mark on %s", date)), nil
	}
	return s.applied(ctx, fmt.Sprintf("marked %s with %s", date, color)), nil
}

func (s *Server) readPalette(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(models.DefaultPalette)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "daymark://palette",
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
