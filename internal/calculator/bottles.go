package calculator

import (
	"sort"

	"github.com/mmynk/gasbottle/internal/models"
)

// BottleComparison compares the latest bottle interval with the one before it.
type BottleComparison struct {
	// HasData is false when fewer than two connections exist.
	HasData bool `json:"hasData"`

	CurrentDays        float64 `json:"currentDays"`
	PreviousDays       float64 `json:"previousDays"`
	CurrentCostPerDay  float64 `json:"currentCostPerDay"`
	PreviousCostPerDay float64 `json:"previousCostPerDay"`
	CurrentGasPerDay   float64 `json:"currentGasPerDay"`
	PreviousGasPerDay  float64 `json:"previousGasPerDay"`

	// DaysChange is CurrentDays minus PreviousDays, or 0 without a previous interval.
	DaysChange float64 `json:"daysChange"`
}

// GasUsage describes gas consumption over the tracked span.
type GasUsage struct {
	TotalGasUsed float64 `json:"totalGasUsed"`
	AvgGasPerDay float64 `json:"avgGasPerDay"`

	// Trend is the mean gap of the newer half of the history minus the mean
	// gap of the older half. Positive means bottles are lasting longer.
	// Needs at least four connections.
	Trend float64 `json:"trend"`

	ProjectedAnnualGas float64 `json:"projectedAnnualGas"`
}

// BottleAverages summarises the gaps between consecutive connections.
type BottleAverages struct {
	MeanDays   float64 `json:"meanDays"`
	MedianDays float64 `json:"medianDays"`

	// MostEfficientDays is the longest a bottle lasted.
	MostEfficientDays float64 `json:"mostEfficientDays"`

	// LeastEfficientDays is the shortest a bottle lasted.
	LeastEfficientDays float64 `json:"leastEfficientDays"`
}

// Comprehensive gathers lifespan and spending projections.
type Comprehensive struct {
	TotalDaysTracked      float64 `json:"totalDaysTracked"`
	AvgLifespan           float64 `json:"avgLifespan"`
	MinLifespan           float64 `json:"minLifespan"`
	MaxLifespan           float64 `json:"maxLifespan"`
	ProjectedMonthlySpend float64 `json:"projectedMonthlySpend"`
	ProjectedAnnualSpend  float64 `json:"projectedAnnualSpend"`
	CostPerKg             float64 `json:"costPerKg"`
}

func compareBottles(h history, settings models.Settings) BottleComparison {
	if h.len() < 2 {
		return BottleComparison{}
	}

	current := h.gapFromEnd(0)
	previous := h.gapFromEnd(1)

	cmp := BottleComparison{
		HasData:            true,
		CurrentDays:        current,
		PreviousDays:       previous,
		CurrentCostPerDay:  safeDiv(settings.BottlePrice, current),
		PreviousCostPerDay: safeDiv(settings.BottlePrice, previous),
		CurrentGasPerDay:   safeDiv(settings.BottleWeight, current),
		PreviousGasPerDay:  safeDiv(settings.BottleWeight, previous),
	}
	if previous > 0 {
		cmp.DaysChange = current - previous
	}
	return cmp
}

func gasUsage(h history, settings models.Settings) GasUsage {
	usage := GasUsage{
		TotalGasUsed: float64(h.len()) * settings.BottleWeight,
	}
	if h.len() < 2 {
		return usage
	}

	usage.AvgGasPerDay = safeDiv(usage.TotalGasUsed, h.totalDays())
	usage.ProjectedAnnualGas = usage.AvgGasPerDay * 365

	if h.len() >= 4 {
		half := h.len() / 2
		older := history{dates: h.dates[:half]}
		newer := history{dates: h.dates[half:]}
		usage.Trend = mean(newer.gaps()) - mean(older.gaps())
	}
	return usage
}

func bottleAverages(h history) BottleAverages {
	gaps := h.gaps()
	if len(gaps) == 0 {
		return BottleAverages{}
	}

	minGap, maxGap := minMax(gaps)
	return BottleAverages{
		MeanDays:           mean(gaps),
		MedianDays:         median(gaps),
		MostEfficientDays:  maxGap,
		LeastEfficientDays: minGap,
	}
}

func comprehensive(h history, totalSpent float64, settings models.Settings) Comprehensive {
	out := Comprehensive{
		CostPerKg: safeDiv(totalSpent, float64(h.len())*settings.BottleWeight),
	}

	gaps := h.gaps()
	if len(gaps) == 0 {
		return out
	}

	out.TotalDaysTracked = h.totalDays()
	out.AvgLifespan = mean(gaps)
	out.MinLifespan, out.MaxLifespan = minMax(gaps)

	daily := safeDiv(totalSpent, out.TotalDaysTracked)
	out.ProjectedMonthlySpend = daily * 30
	out.ProjectedAnnualSpend = daily * 365
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
