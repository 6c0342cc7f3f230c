package mcpserver

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/daymark/internal/models"
)

func requireDate(req mcp.CallToolRequest) (models.Date, error) {
	raw, err := req.RequireString("date")
	if err != nil {
		return models.Date{}, err
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, err
	}
	return d, d.Validate()
}

func requireMonth(req mcp.CallToolRequest) (models.YearMonth, error) {
	raw, err := req.RequireString("month")
	if err != nil {
		return models.YearMonth{}, err
	}
	return models.ParseYearMonth(raw)
}

func requireID(req mcp.CallToolRequest) (int64, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", id)
	}
	return int64(id), nil
}

// optionalColor returns nil when the color argument is absent or blank.
func optionalColor(req mcp.CallToolRequest) (*models.Color, error) {
	raw := strings.TrimSpace(req.GetString("color", ""))
	if raw == "" {
		return nil, nil
	}
	c, err := models.ParseColor(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func colorOrDefault(req mcp.CallToolRequest) (models.Color, error) {
	c, err := optionalColor(req)
	if err != nil || c == nil {
		return models.DefaultPalette[0], err
	}
	return *c, nil
}
