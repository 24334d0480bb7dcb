package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for Connection.Date.
const DateLayout = "2006-01-02"

// dateLayouts are accepted when parsing dates from imports or remote documents.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04",
	time.RFC3339,
}

// Connection represents one gas bottle refill event.
type Connection struct {
	// ID is unique within a store and doubles as the remote document key.
	// New IDs are time-derived, so they increase with creation order.
	ID int64 `json:"id"`

	// Date is the refill date (YYYY-MM-DD), supplied by the user.
	Date string `json:"date"`

	// Cost is the amount paid for this bottle. Never negative.
	Cost float64 `json:"cost"`

	// Timestamp is the creation instant in RFC 3339 format.
	// Informational only; calculations never read it.
	Timestamp string `json:"timestamp"`
}

// Validate checks the connection's user-supplied fields.
func (c Connection) Validate() error {
	if strings.TrimSpace(c.Date) == "" {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if _, err := ParseDate(c.Date); err != nil {
		return fmt.Errorf("%w: invalid date %q", ErrValidation, c.Date)
	}
	if math.IsNaN(c.Cost) || math.IsInf(c.Cost, 0) || c.Cost < 0 {
		return fmt.Errorf("%w: cost must be a non-negative number", ErrValidation)
	}
	return nil
}

// ParseDate parses a calendar date. Dates without a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// DaysBetween returns the number of days from a to b, rounded up.
// A partial day counts as a whole one.
func DaysBetween(a, b time.Time) float64 {
	return math.Ceil(b.Sub(a).Hours() / 24)
}

// SortByDateDesc sorts connections newest first.
// Connections sharing a date keep their relative order.
func SortByDateDesc(conns []Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		return dateOf(conns[i]).After(dateOf(conns[j]))
	})
}

// SortByDateAsc sorts connections oldest first.
// Connections sharing a date keep their relative order.
func SortByDateAsc(conns []Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		return dateOf(conns[i]).Before(dateOf(conns[j]))
	})
}

func dateOf(c Connection) time.Time {
	t, _ := ParseDate(c.Date)
	return t
}
