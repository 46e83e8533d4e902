// Package uptime implements the get-uptime tool.
package uptime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
)

// Handler reports how long the server has been running.
type Handler struct {
	start time.Time
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

// NewHandler creates a Handler anchored at the current time.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.start = h.clock()
	return h
}

// Definition returns the catalog descriptor for the get-uptime tool.
func (h *Handler) Definition() shared.Tool {
	return shared.Tool{
		Name:        "get-uptime",
		Description: "Get the amount of time the server has been running",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}
}

// GetUptime implements the tool.
func (h *Handler) GetUptime(ctx context.Context, args map[string]interface{}) ([]shared.Content, error) {
	now := h.clock()
	elapsed := now.Sub(h.start)

	payload := map[string]interface{}{
		"uptime_seconds":      elapsed.Seconds(),
		"uptime_milliseconds": elapsed.Milliseconds(),
		"server_start_time":   h.start.UTC().Format(time.RFC3339),
		"current_time":        now.UTC().Format(time.RFC3339),
		"formatted_uptime":    formatUptime(elapsed),
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}

	return []shared.Content{shared.NewTextContent(string(data))}, nil
}

// Uptime returns the elapsed time since the handler was created, for the
// healthcheck endpoint.
func (h *Handler) Uptime() time.Duration {
	return h.clock().Sub(h.start)
}

// formatUptime renders a duration as "1d 2h 3m 4s", omitting zero parts.
func formatUptime(d time.Duration) string {
	seconds := int64(d.Seconds())

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}

	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
