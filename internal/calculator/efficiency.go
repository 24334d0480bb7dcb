package calculator

// Efficiency ratings, best first.
const (
	RatingExcellent    = "Excellent"
	RatingGood         = "Good"
	RatingAverage      = "Average"
	RatingBelowAverage = "Below Average"
	RatingPoor         = "Poor"
	RatingNA           = "N/A"
)

// Efficiency is a heuristic score of how well bottles are lasting.
type Efficiency struct {
	Score  float64 `json:"score"`
	Rating string  `json:"rating"`
}

// efficiency sums four weighted signals:
//   - the latest gap against the historical mean
//   - the spread between the longest and shortest gap
//   - the latest gap against the previous one
//   - the absolute length of the mean gap
//
// It needs at least three connections, otherwise the rating is N/A.
func efficiency(h history) Efficiency {
	if h.len() < 3 {
		return Efficiency{Score: 0, Rating: RatingNA}
	}

	gaps := h.gaps()
	avg := mean(gaps)
	current := h.gapFromEnd(0)
	previous := h.gapFromEnd(1)
	minGap, maxGap := minMax(gaps)

	var score float64

	switch ratio := safeDiv(current, avg); {
	case ratio >= 1.1:
		score += 25
	case ratio >= 0.9:
		score += 10
	default:
		score -= 25
	}

	switch spread := maxGap - minGap; {
	case spread <= 7:
		score += 25
	case spread <= 14:
		score += 15
	default:
		score += 5
	}

	switch {
	case current > previous:
		score += 20
	case current < previous:
		score -= 10
	}

	switch {
	case avg >= 21:
		score += 30
	case avg >= 14:
		score += 20
	case avg >= 7:
		score += 10
	default:
		score -= 10
	}

	return Efficiency{Score: score, Rating: ratingFor(score)}
}

func ratingFor(score float64) string {
	switch {
	case score >= 80:
		return RatingExcellent
	case score >= 60:
		return RatingGood
	case score >= 40:
		return RatingAverage
	case score >= 20:
		return RatingBelowAverage
	default:
		return RatingPoor
	}
}
