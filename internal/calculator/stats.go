// Package calculator derives usage and cost statistics from connection records.
//
// Every function here is pure: it reads a snapshot of connections and settings
// and returns values. Day counts between dates are rounded up to whole days,
// and every ratio short-circuits to 0 when its denominator is 0, so no result
// is ever NaN or Inf.
package calculator

import (
	"time"

	"github.com/mmynk/gasbottle/internal/models"
)

// CostPerDay summarises the cost rate across the whole history.
type CostPerDay struct {
	// DailyRate is BottlePrice divided by the average gap between bottles.
	DailyRate float64 `json:"dailyRate"`

	// DaysBetween is the mean gap in days over consecutive connections.
	DaysBetween float64 `json:"daysBetween"`

	// TotalDays spans the earliest to the latest connection.
	TotalDays float64 `json:"totalDays"`

	// AverageDailyCost is total spent divided by TotalDays.
	AverageDailyCost float64 `json:"averageDailyCost"`
}

// Stats is the aggregate result of one Calculate call.
type Stats struct {
	TotalConnections int        `json:"totalConnections"`
	TotalSpent       float64    `json:"totalSpent"`
	AvgCost          float64    `json:"avgCost"`
	TotalGas         float64    `json:"totalGas"`
	CostPerDay       CostPerDay `json:"costPerDay"`

	RecentCostPerDay float64 `json:"recentCostPerDay"`

	// OverallCostPerDay duplicates CostPerDay.AverageDailyCost. Both are kept
	// because exported documents carry both fields.
	OverallCostPerDay float64 `json:"overallCostPerDay"`
	RecentDaysBetween float64 `json:"recentDaysBetween"`
	ProjectedMonthly  float64 `json:"projectedMonthly"`

	CurrentVsPrevious BottleComparison `json:"currentVsPreviousBottle"`
	GasUsage          GasUsage         `json:"gasUsageStats"`
	BottleAverages    BottleAverages   `json:"bottleAverages"`
	Comprehensive     Comprehensive    `json:"comprehensiveStats"`
	Efficiency        Efficiency       `json:"bottleEfficiencyRating"`
}

// Calculate computes every statistic for the given connections and settings.
// The input slice is not modified.
func Calculate(conns []models.Connection, settings models.Settings) Stats {
	h := newHistory(conns)

	totalSpent := sumCost(conns)
	stats := Stats{
		TotalConnections: len(conns),
		TotalSpent:       totalSpent,
		AvgCost:          safeDiv(totalSpent, float64(len(conns))),
		TotalGas:         float64(len(conns)) * settings.BottleWeight,
	}

	stats.CostPerDay = costPerDay(h, totalSpent, settings)
	stats.RecentDaysBetween = h.recentGap()
	stats.RecentCostPerDay = recentCostPerDay(h, settings)
	stats.OverallCostPerDay = overallCostPerDay(h, totalSpent)
	if stats.RecentCostPerDay > 0 {
		stats.ProjectedMonthly = stats.RecentCostPerDay * 30
	}

	stats.CurrentVsPrevious = compareBottles(h, settings)
	stats.GasUsage = gasUsage(h, settings)
	stats.BottleAverages = bottleAverages(h)
	stats.Comprehensive = comprehensive(h, totalSpent, settings)
	stats.Efficiency = efficiency(h)

	return stats
}

func costPerDay(h history, totalSpent float64, settings models.Settings) CostPerDay {
	if h.len() < 2 {
		return CostPerDay{}
	}

	totalDays := h.totalDays()
	avgGap := mean(h.gaps())

	return CostPerDay{
		DailyRate:        safeDiv(settings.BottlePrice, avgGap),
		DaysBetween:      avgGap,
		TotalDays:        totalDays,
		AverageDailyCost: safeDiv(totalSpent, totalDays),
	}
}

// recentCostPerDay prices the latest interval at today's bottle price.
func recentCostPerDay(h history, settings models.Settings) float64 {
	days := h.recentGap()
	if days <= 0 {
		return 0
	}
	return settings.BottlePrice / days
}

func overallCostPerDay(h history, totalSpent float64) float64 {
	if h.len() < 2 {
		return 0
	}
	totalDays := h.totalDays()
	if totalDays <= 0 {
		return 0
	}
	return totalSpent / totalDays
}

// history holds the dated connections sorted oldest first.
// Connections whose date cannot be parsed are left out.
type history struct {
	dates []time.Time
}

func newHistory(conns []models.Connection) history {
	sorted := append([]models.Connection(nil), conns...)
	models.SortByDateAsc(sorted)

	dates := make([]time.Time, 0, len(sorted))
	for _, c := range sorted {
		t, err := models.ParseDate(c.Date)
		if err != nil {
			continue
		}
		dates = append(dates, t)
	}
	return history{dates: dates}
}

func (h history) len() int {
	return len(h.dates)
}

// totalDays is the rounded-up span from the first to the last date.
func (h history) totalDays() float64 {
	if h.len() < 2 {
		return 0
	}
	return models.DaysBetween(h.dates[0], h.dates[h.len()-1])
}

// gaps returns the rounded-up day counts between consecutive dates.
func (h history) gaps() []float64 {
	if h.len() < 2 {
		return nil
	}
	out := make([]float64, 0, h.len()-1)
	for i := 1; i < h.len(); i++ {
		out = append(out, models.DaysBetween(h.dates[i-1], h.dates[i]))
	}
	return out
}

// recentGap is the gap between the two most recent connections.
func (h history) recentGap() float64 {
	return h.gapFromEnd(0)
}

// gapFromEnd returns the n-th most recent gap (0 is the latest), or 0 when
// there are not enough connections.
func (h history) gapFromEnd(n int) float64 {
	last := h.len() - 1 - n
	if last < 1 {
		return 0
	}
	return models.DaysBetween(h.dates[last-1], h.dates[last])
}

func sumCost(conns []models.Connection) float64 {
	var total float64
	for _, c := range conns {
		total += c.Cost
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
