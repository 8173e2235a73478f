package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Accepted date-time layouts. Values without an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 date-time and normalises it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date-time is required", domain.ErrInvalidInput)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not an ISO-8601 date-time", domain.ErrInvalidInput, s)
}

// parseRange parses a closed interval and rejects start after end.
func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := ParseTimestamp(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseTimestamp(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s is after end %s",
			domain.ErrInvalidInput, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}
