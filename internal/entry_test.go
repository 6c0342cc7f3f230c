package internal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/daymark/internal/clock"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:a@test
DTSTART:20240315T090000
SUMMARY:Standup
STATUS:COMPLETED
END:VEVENT
BEGIN:VEVENT
UID:b@test
DTSTART;VALUE=DATE:20240320
SUMMARY:Day mark
CATEGORIES:day-mark
COLOR:#00ff00
END:VEVENT
BEGIN:VEVENT
UID:c@test
SUMMARY:No start
END:VEVENT
END:VCALENDAR
`

func testOptions(t *testing.T) []Option {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(dir, "daymark.db")
	cfg.SQLite.Watch = false
	cfg.State.GracePeriod = 10 * time.Millisecond
	return []Option{
		WithConfig(cfg),
		WithLogOutput(io.Discard),
		WithClock(clock.NewFixed(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))),
	}
}

func TestRequiresConfig(t *testing.T) {
	if err := Export(context.Background(), "x.ics", WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestImportThenExport(t *testing.T) {
	opts := testOptions(t)
	ctx := context.Background()
	in := filepath.Join(t.TempDir(), "in.ics")
	if err := os.WriteFile(in, []byte(strings.ReplaceAll(sampleICS, "\n", "\r\n")), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Import(ctx, in, opts...); err != nil {
		t.Fatalf("import: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.ics")
	if err := Export(ctx, out, opts...); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{
		"SUMMARY:Standup",
		"DTSTART:20240315T090000",
		"STATUS:COMPLETED",
		"CATEGORIES:day-mark",
		"20240320",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("export missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "No start") {
		t.Error("event without start should have been skipped")
	}
}

func TestImportMissingFile(t *testing.T) {
	if err := Import(context.Background(), filepath.Join(t.TempDir(), "nope.ics"), testOptions(t)...); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExportWithoutDatabaseFile(t *testing.T) {
	opts := testOptions(t)
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = ""
	cfg.State.GracePeriod = 10 * time.Millisecond
	opts = append(opts, WithConfig(cfg))

	out := filepath.Join(t.TempDir(), "out.ics")
	if err := Export(context.Background(), out, opts...); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	if !strings.Contains(body, "BEGIN:VCALENDAR") || strings.Contains(body, "BEGIN:VEVENT") {
		t.Errorf("unexpected export:\n%s", body)
	}
}
