// Package ferries implements tools backed by the Arranmore Ferry public API.
package ferries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
)

// DefaultTimetableURL is the public timetable endpoint.
const DefaultTimetableURL = "https://api.thearranmoreferry.com/v2/timetables"

// Journey direction codes used by the timetable API.
const (
	journeyDepartingArranmore = "dt"
	journeyDepartingMainland  = "dm"
)

// timetableEntry is one scheduled sailing. Times are encoded as integers,
// e.g. 745 for 07:45 and 1315 for 13:15. Months are zero-based and days
// run Sunday=0 through Saturday=6.
type timetableEntry struct {
	Time    int    `json:"time"`
	Months  []int  `json:"months"`
	Days    []int  `json:"days"`
	Journey string `json:"journey"`
}

type timetableResponse struct {
	Data []timetableEntry `json:"data"`
}

// Handler serves the get-ferries and get-base tools.
type Handler struct {
	client *http.Client
	url    string
	clock  func() time.Time
	logger *logging.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient overrides the HTTP client used to reach the timetable API.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) {
		h.client = client
	}
}

// WithTimetableURL overrides the timetable endpoint, for tests.
func WithTimetableURL(url string) Option {
	return func(h *Handler) {
		h.url = url
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler creates a Handler against the public timetable API.
func NewHandler(logger *logging.Logger, opts ...Option) *Handler {
	h := &Handler{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    DefaultTimetableURL,
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// FerriesDefinition returns the catalog descriptor for the get-ferries tool.
func (h *Handler) FerriesDefinition() shared.Tool {
	return shared.Tool{
		Name:        "get-ferries",
		Description: "Get todays ferries from the Arranmore Ferry",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}
}

// BaseDefinition returns the catalog descriptor for the get-base probe tool.
func (h *Handler) BaseDefinition() shared.Tool {
	return shared.Tool{
		Name:        "get-base",
		Description: "Get the base mcp request",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}
}

// GetBase implements the trivial probe tool.
func (h *Handler) GetBase(ctx context.Context, args map[string]interface{}) ([]shared.Content, error) {
	return []shared.Content{shared.NewTextContent("This is the base request")}, nil
}

// GetFerries fetches today's timetable and splits sailings by direction.
func (h *Handler) GetFerries(ctx context.Context, args map[string]interface{}) ([]shared.Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build timetable request")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve timetable data")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("timetable API returned status %d", resp.StatusCode)
	}

	var timetable timetableResponse
	if err := json.NewDecoder(resp.Body).Decode(&timetable); err != nil {
		return nil, errors.Wrap(err, "failed to decode timetable data")
	}

	now := h.clock()
	month := int(now.Month()) - 1
	day := int(now.Weekday())

	var today []timetableEntry
	for _, entry := range timetable.Data {
		if containsInt(entry.Months, month) && containsInt(entry.Days, day) {
			today = append(today, entry)
		}
	}

	h.logger.Debug("timetable fetched", logging.Fields{
		"entries": len(timetable.Data),
		"today":   len(today),
	})

	return []shared.Content{
		shared.NewTextContent(fmt.Sprintf(
			"This is todays ferries for Departing Arranmore Island: %s",
			departureTimes(today, journeyDepartingArranmore),
		)),
		shared.NewTextContent(fmt.Sprintf(
			"This is todays ferries for Departing Burtonport: %s",
			departureTimes(today, journeyDepartingMainland),
		)),
	}, nil
}

func departureTimes(entries []timetableEntry, journey string) string {
	var times []int
	for _, entry := range entries {
		if entry.Journey == journey {
			times = append(times, entry.Time)
		}
	}
	sort.Ints(times)

	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, fmt.Sprintf("%d", t))
	}
	return strings.Join(formatted, ", ")
}

func containsInt(values []int, want int) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
