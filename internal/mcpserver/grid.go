package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/daymark/internal/calendar"
	"github.com/starford/daymark/internal/models"
)

const weekHeader = "Mo  Tu  We  Th  Fr  Sa  Su"

// renderGrid draws days as six rows of seven four-character cells.
func renderGrid(ym models.YearMonth, days []calendar.DayView) string {
	lines := []string{fmt.Sprintf("%s %d", ym.Month, ym.Year), weekHeader}
	for row := 0; row*7 < len(days); row++ {
		var line strings.Builder
		for _, d := range days[row*7 : row*7+7] {
			if d.Empty() {
				line.WriteString("    ")
				continue
			}
			fmt.Fprintf(&line, "%2d%c ", d.Date.Day, dayFlag(d))
		}
		lines = append(lines, strings.TrimRight(line.String(), " "))
	}
	return strings.Join(lines, "\n")
}

func dayFlag(d calendar.DayView) byte {
	switch {
	case d.Mark != nil && len(d.Colors) > 0:
		return '#'
	case d.Mark != nil:
		return '*'
	case len(d.Colors) > 0:
		return '+'
	default:
		return ' '
	}
}
