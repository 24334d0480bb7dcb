package models

import (
	"fmt"
	"math"
)

const (
	// DefaultBottleWeight is the kilograms of gas in a standard bottle.
	DefaultBottleWeight = 47.0

	// DefaultBottlePrice is the starting price of one bottle.
	DefaultBottlePrice = 83.50
)

// Settings holds the per-user bottle configuration.
type Settings struct {
	// BottleWeight is the kilograms of gas per bottle. Always positive.
	BottleWeight float64 `json:"bottleWeight"`

	// BottlePrice is the current price of a bottle. Never negative.
	// It is the default cost for new connections and drives the
	// "at today's price" cost-per-day figures.
	BottlePrice float64 `json:"bottlePrice"`
}

// DefaultSettings returns the settings used on first run.
func DefaultSettings() Settings {
	return Settings{
		BottleWeight: DefaultBottleWeight,
		BottlePrice:  DefaultBottlePrice,
	}
}

// Validate checks both fields.
func (s Settings) Validate() error {
	if math.IsNaN(s.BottleWeight) || math.IsInf(s.BottleWeight, 0) || s.BottleWeight <= 0 {
		return fmt.Errorf("%w: bottle weight must be positive", ErrValidation)
	}
	if math.IsNaN(s.BottlePrice) || math.IsInf(s.BottlePrice, 0) || s.BottlePrice < 0 {
		return fmt.Errorf("%w: bottle price must be non-negative", ErrValidation)
	}
	return nil
}

// SettingsPatch carries a partial settings update. Nil fields are left alone.
type SettingsPatch struct {
	BottleWeight *float64
	BottlePrice  *float64
}

// Apply merges the patch onto s field by field. Values that would make the
// settings invalid are skipped.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.BottleWeight != nil && *p.BottleWeight > 0 && !math.IsInf(*p.BottleWeight, 0) {
		s.BottleWeight = *p.BottleWeight
	}
	if p.BottlePrice != nil && *p.BottlePrice >= 0 && !math.IsInf(*p.BottlePrice, 0) {
		s.BottlePrice = *p.BottlePrice
	}
	return s
}
