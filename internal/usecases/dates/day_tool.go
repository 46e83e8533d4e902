// Package dates implements the interpret-day tool, which turns colloquial
// day terms like "tomorrow" or "next friday" into concrete dates.
package dates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
)

var dayNames = []string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// Handler serves the interpret-day tool.
type Handler struct {
	clock func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler creates a Handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Definition returns the catalog descriptor for the interpret-day tool.
func (h *Handler) Definition() shared.Tool {
	return shared.Tool{
		Name:        "interpret-day",
		Description: "Interprets colloquial day terms and returns the corresponding date",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"dayTerm": map[string]interface{}{
					"type":        "string",
					"description": "The day term to interpret (e.g., \"Friday\", \"next Monday\", \"tomorrow\")",
				},
				"referenceDate": map[string]interface{}{
					"type":        "string",
					"description": "Reference date in ISO format (defaults to today)",
				},
			},
			"required": []string{"dayTerm"},
		},
	}
}

// interpretation is the JSON shape returned as the tool's text content.
type interpretation struct {
	Date          string `json:"date,omitempty"`
	DayName       string `json:"dayName,omitempty"`
	IsValid       bool   `json:"isValid"`
	DaysFromToday int    `json:"daysFromToday,omitempty"`
	Error         string `json:"error,omitempty"`
}

// InterpretDay implements the tool.
func (h *Handler) InterpretDay(ctx context.Context, args map[string]interface{}) ([]shared.Content, error) {
	term, ok := args["dayTerm"].(string)
	if !ok || term == "" {
		return nil, fmt.Errorf("dayTerm must be a non-empty string")
	}

	today := h.clock()
	if ref, ok := args["referenceDate"].(string); ok && ref != "" {
		parsed, err := time.Parse("2006-01-02", ref)
		if err != nil {
			return nil, fmt.Errorf("referenceDate must be an ISO date: %v", err)
		}
		today = parsed
	}

	result := interpret(term, today)

	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return []shared.Content{shared.NewTextContent(string(data))}, nil
}

// interpret resolves a day term against a reference date.
//
// "next <weekday>" always means the occurrence in the following week, even
// when the bare weekday would land later in the current week. In
// particular, "next friday" asked on a Friday is seven days out.
func interpret(term string, today time.Time) interpretation {
	normalized := strings.ToLower(strings.TrimSpace(term))
	todayIndex := int(today.Weekday())

	switch normalized {
	case "today":
		return valid(today, todayIndex, 0)
	case "tomorrow":
		d := today.AddDate(0, 0, 1)
		return valid(d, int(d.Weekday()), 1)
	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return valid(d, int(d.Weekday()), -1)
	}

	isNext := strings.HasPrefix(normalized, "next ")
	dayOnly := strings.TrimPrefix(normalized, "next ")
	dayOnly = strings.TrimPrefix(dayOnly, "this ")

	targetIndex := matchDay(dayOnly)
	if targetIndex == -1 {
		return interpretation{
			IsValid: false,
			Error:   fmt.Sprintf("Could not interpret %q as a valid day", term),
		}
	}

	daysToAdd := targetIndex - todayIndex
	// A bare weekday that is today or already past this week rolls forward.
	if daysToAdd <= 0 && !isNext {
		daysToAdd += 7
	}
	// "next" always pushes into the following week.
	if isNext {
		daysToAdd += 7
	}

	target := today.AddDate(0, 0, daysToAdd)
	return valid(target, targetIndex, daysToAdd)
}

func valid(date time.Time, dayIndex, offset int) interpretation {
	return interpretation{
		Date:          date.Format("2006-01-02"),
		DayName:       dayNames[dayIndex],
		IsValid:       true,
		DaysFromToday: offset,
	}
}

// matchDay finds a weekday by exact name or unambiguous prefix.
func matchDay(name string) int {
	for i, day := range dayNames {
		if strings.ToLower(day) == name {
			return i
		}
	}
	for i, day := range dayNames {
		if strings.HasPrefix(strings.ToLower(day), name) {
			return i
		}
	}
	return -1
}
