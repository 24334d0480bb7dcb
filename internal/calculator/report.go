package calculator

import (
	"fmt"
	"strings"

	"github.com/mmynk/gasbottle/internal/models"
)

// ReportStats summarises the connections inside a date range.
type ReportStats struct {
	TotalConnections int     `json:"totalConnections"`
	TotalSpent       float64 `json:"totalSpent"`
	AvgCost          float64 `json:"avgCost"`
	CostPerDay       float64 `json:"costPerDay"`

	// PeriodDays counts both the start and the end date.
	PeriodDays      float64 `json:"periodDays"`
	ProjectedAnnual float64 `json:"projectedAnnual"`
}

// Report is the result of a date range query.
type Report struct {
	StartDate   string              `json:"startDate"`
	EndDate     string              `json:"endDate"`
	Stats       ReportStats         `json:"statistics"`
	Connections []models.Connection `json:"connections"`
}

// BuildReport filters connections dated within [start, end] and summarises
// them. The returned connections are sorted newest first.
func BuildReport(conns []models.Connection, start, end string) (*Report, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return nil, fmt.Errorf("%w: both start and end dates are required", models.ErrValidation)
	}
	startT, err := models.ParseDate(start)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date %q", models.ErrValidation, start)
	}
	endT, err := models.ParseDate(end)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end date %q", models.ErrValidation, end)
	}
	if startT.After(endT) {
		return nil, fmt.Errorf("%w: start date must be before end date", models.ErrValidation)
	}

	filtered := []models.Connection{}
	for _, c := range conns {
		t, err := models.ParseDate(c.Date)
		if err != nil {
			continue
		}
		if !t.Before(startT) && !t.After(endT) {
			filtered = append(filtered, c)
		}
	}
	models.SortByDateDesc(filtered)

	total := sumCost(filtered)
	periodDays := models.DaysBetween(startT, endT) + 1
	perDay := safeDiv(total, periodDays)

	return &Report{
		StartDate: start,
		EndDate:   end,
		Stats: ReportStats{
			TotalConnections: len(filtered),
			TotalSpent:       total,
			AvgCost:          safeDiv(total, float64(len(filtered))),
			CostPerDay:       perDay,
			PeriodDays:       periodDays,
			ProjectedAnnual:  perDay * 365,
		},
		Connections: filtered,
	}, nil
}
