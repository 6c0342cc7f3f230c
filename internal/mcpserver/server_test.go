package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/daymark/internal/clock"
	"github.com/starford/daymark/internal/models"
	"github.com/starford/daymark/internal/repository"
	"github.com/starford/daymark/internal/state"
	"github.com/starford/daymark/internal/store"
	"github.com/starford/daymark/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return testServerOver(t, store.NewMemory())
}

func testServerOver(t *testing.T, s store.Store) *Server {
	t.Helper()

	repo := repository.New(s, testutil.Logger())
	ctrl := state.New(repo,
		state.WithLogger(testutil.Logger()),
		state.WithGracePeriod(50*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = ctrl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		ctrl.Close()
	})

	clk := clock.NewFixed(time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC))
	return New(ctrl, clk)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_month_tasks":
		result, err = srv.listMonthTasks(ctx, req)
	case "get_day":
		result, err = srv.getDay(ctx, req)
	case "month_grid":
		result, err = srv.monthGrid(ctx, req)
	case "add_event":
		result, err = srv.addEvent(ctx, req)
	case "update_event":
		result, err = srv.updateEvent(ctx, req)
	case "toggle_event":
		result, err = srv.toggleEvent(ctx, req)
	case "delete_event":
		result, err = srv.deleteEvent(ctx, req)
	case "set_day_mark":
		result, err = srv.setDayMark(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// monthTasks polls list_month_tasks until it reports n events.
func monthTasks(t *testing.T, srv *Server, month string, n int) []eventOut {
	t.Helper()
	var tasks []eventOut
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		r := callTool(t, srv, "list_month_tasks", map[string]any{"month": month})
		if r.IsError {
			return false
		}
		tasks = nil
		if err := json.Unmarshal([]byte(resultText(r)), &tasks); err != nil {
			return n == 0
		}
		return len(tasks) == n
	}, "month tasks never reached expected count")
	return tasks
}

func TestAddAndListEvents(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "add_event", map[string]any{
		"date": "2024-03-15", "hour": 9, "minute": 0, "title": "Standup", "color": "#ff0000",
	})
	if r.IsError {
		t.Fatalf("add_event error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "09:00") {
		t.Errorf("unexpected reply %q", resultText(r))
	}
	callTool(t, srv, "add_event", map[string]any{"date": "2024-03-02", "hour": 18, "title": "Dinner"})

	tasks := monthTasks(t, srv, "2024-03", 2)
	if tasks[0].Title != "Dinner" || tasks[1].Title != "Standup" {
		t.Errorf("order = %q, %q", tasks[0].Title, tasks[1].Title)
	}
	if tasks[0].Color != models.DefaultPalette[0] {
		t.Errorf("default colour = %s", tasks[0].Color)
	}
	if tasks[1].Time != "09:00" {
		t.Errorf("time = %q", tasks[1].Time)
	}

	r = callTool(t, srv, "list_month_tasks", map[string]any{"month": "2024-03", "color": "#ff0000"})
	if !strings.Contains(resultText(r), "Standup") || strings.Contains(resultText(r), "Dinner") {
		t.Errorf("colour filter result %q", resultText(r))
	}
}

func TestAddEventValidation(t *testing.T) {
	srv := testServer(t)

	cases := map[string]map[string]any{
		"missing date":  {"title": "x"},
		"bad date":      {"date": "2024-02-30", "title": "x"},
		"blank title":   {"date": "2024-03-01", "title": "   "},
		"missing title": {"date": "2024-03-01"},
		"bad colour":    {"date": "2024-03-01", "title": "x", "color": "red"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if r := callTool(t, srv, "add_event", args); !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
}

func TestEmptyMonth(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "list_month_tasks", map[string]any{"month": "2024-05"})
	if r.IsError || !strings.Contains(resultText(r), "no events in 2024-05") {
		t.Errorf("unexpected result %q", resultText(r))
	}
	if r := callTool(t, srv, "list_month_tasks", map[string]any{"month": "May"}); !r.IsError {
		t.Error("expected error for malformed month")
	}
}

func TestToggleUpdateDelete(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "add_event", map[string]any{"date": "2024-03-15", "hour": 9, "title": "Standup"})
	id := monthTasks(t, srv, "2024-03", 1)[0].ID

	if r := callTool(t, srv, "toggle_event", map[string]any{"id": float64(id)}); r.IsError {
		t.Fatalf("toggle error: %s", resultText(r))
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return monthTasks(t, srv, "2024-03", 1)[0].Done
	}, "event never marked done")

	r := callTool(t, srv, "update_event", map[string]any{
		"id": float64(id), "date": "2024-03-16", "hour": 10, "minute": 30, "title": "Retro", "done": false,
	})
	if r.IsError {
		t.Fatalf("update error: %s", resultText(r))
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		e := monthTasks(t, srv, "2024-03", 1)[0]
		return e.Title == "Retro" && e.Time == "10:30" && !e.Done
	}, "update not applied")

	if r := callTool(t, srv, "delete_event", map[string]any{"id": float64(id)}); r.IsError {
		t.Fatalf("delete error: %s", resultText(r))
	}
	monthTasks(t, srv, "2024-03", 0)

	// Unknown ids are ignored.
	if r := callTool(t, srv, "delete_event", map[string]any{"id": 999}); r.IsError {
		t.Errorf("delete unknown id: %s", resultText(r))
	}
	if r := callTool(t, srv, "toggle_event", map[string]any{"id": 0}); !r.IsError {
		t.Error("expected error for non-positive id")
	}
}

func TestDayMarkAndGetDay(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "add_event", map[string]any{"date": "2024-03-08", "hour": 14, "title": "Late"})
	callTool(t, srv, "add_event", map[string]any{"date": "2024-03-08", "hour": 8, "title": "Early"})
	if r := callTool(t, srv, "set_day_mark", map[string]any{"date": "2024-03-08", "color": "#00ff00"}); r.IsError {
		t.Fatalf("set mark error: %s", resultText(r))
	}

	var day struct {
		Mark   *models.Color `json:"mark"`
		Events []eventOut    `json:"events"`
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		r := callTool(t, srv, "get_day", map[string]any{"date": "2024-03-08"})
		day.Mark, day.Events = nil, nil
		if err := json.Unmarshal([]byte(resultText(r)), &day); err != nil {
			return false
		}
		return day.Mark != nil && len(day.Events) == 2
	}, "day never showed mark and events")

	if *day.Mark != models.Color(0x00FF00) {
		t.Errorf("mark = %s", day.Mark)
	}
	if day.Events[0].Title != "Early" {
		t.Errorf("first event = %q, want Early", day.Events[0].Title)
	}

	r := callTool(t, srv, "set_day_mark", map[string]any{"date": "2024-03-08"})
	if !strings.Contains(resultText(r), "cleared") {
		t.Errorf("clear reply %q", resultText(r))
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		r := callTool(t, srv, "get_day", map[string]any{"date": "2024-03-08"})
		return strings.Contains(resultText(r), `"mark": null`)
	}, "mark not cleared")
}

func TestMonthGrid(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "add_event", map[string]any{"date": "2024-03-15", "title": "Standup"})
	callTool(t, srv, "set_day_mark", map[string]any{"date": "2024-03-15", "color": "#0000ff"})
	callTool(t, srv, "set_day_mark", map[string]any{"date": "2024-03-01", "color": "#0000ff"})
	callTool(t, srv, "add_event", map[string]any{"date": "2024-03-20", "title": "Dentist"})

	var text string
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		text = resultText(callTool(t, srv, "month_grid", map[string]any{"month": "2024-03"}))
		return strings.Contains(text, "15#") && strings.Contains(text, "20+")
	}, "grid never showed decorations")

	lines := strings.Split(text, "\n")
	if lines[0] != "March 2024" || lines[1] != weekHeader {
		t.Errorf("header = %q / %q", lines[0], lines[1])
	}
	if len(lines) != 8 {
		t.Fatalf("got %d lines, want 8", len(lines))
	}
	// March 2024 starts on a Friday.
	if !strings.HasPrefix(lines[2], "                 1*") {
		t.Errorf("first week = %q", lines[2])
	}
}

func TestPaletteResource(t *testing.T) {
	srv := testServer(t)
	contents, err := srv.readPalette(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("unexpected content type %T", contents[0])
	}
	var palette []models.Color
	if err := json.Unmarshal([]byte(tc.Text), &palette); err != nil {
		t.Fatal(err)
	}
	if len(palette) != len(models.DefaultPalette) || palette[0] != models.DefaultPalette[0] {
		t.Errorf("palette = %v", palette)
	}
}

func TestMutationReportsStorageFailure(t *testing.T) {
	mem := store.NewMemory()
	srv := testServerOver(t, mem)
	mem.FailWrites(errors.New("disk full"))

	r := callTool(t, srv, "add_event", map[string]any{"date": "2024-03-15", "title": "Standup"})
	if !r.IsError || !strings.Contains(resultText(r), "disk full") {
		t.Fatalf("add_event on failing store = %q (error %v)", resultText(r), r.IsError)
	}

	mem.FailWrites(nil)
	if r := callTool(t, srv, "set_day_mark", map[string]any{"date": "2024-03-15", "color": "#0000ff"}); r.IsError {
		t.Errorf("set_day_mark after recovery: %s", resultText(r))
	}
}

func TestServeOverStreams(t *testing.T) {
	srv := testServer(t)
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"add_event","arguments":{"date":"2024-03-15","hour":9,"title":"Standup"}}}`,
	}, "\n") + "\n")
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Serve(ctx, in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	replies := make(map[float64]json.RawMessage)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var msg struct {
			ID     float64         `json:"id"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("bad reply %q: %v", line, err)
		}
		replies[msg.ID] = msg.Result
	}

	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(replies[2], &list); err != nil {
		t.Fatalf("tools/list reply: %v", err)
	}
	if len(list.Tools) != 8 {
		t.Errorf("got %d tools, want 8", len(list.Tools))
	}
	if !strings.Contains(string(replies[3]), "added") || strings.Contains(string(replies[3]), `"isError":true`) {
		t.Errorf("add_event reply = %s", replies[3])
	}
	monthTasks(t, srv, "2024-03", 1)
}
