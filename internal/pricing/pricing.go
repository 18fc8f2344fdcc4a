// Package pricing computes price deltas between fare observations.
// Everything here is pure: no state, no I/O.
package pricing

import (
	"fmt"
	"math"

	"farewatch/internal/model"
)

// Direction classifies a price change.
type Direction string

const (
	Drop      Direction = "drop"
	Rise      Direction = "rise"
	Unchanged Direction = "unchanged"
)

// Change is the derived delta between two fare observations. It is computed
// on demand and never persisted.
type Change struct {
	Percent     float64   `json:"percent"`
	Direction   Direction `json:"direction"`
	Significant bool      `json:"significant"`
}

// ChangePercent returns the signed percent change from previous to current.
// A zero previous price yields zero to avoid division by zero.
func ChangePercent(previous, current float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// Classify maps a percent change onto a direction. Changes smaller in
// magnitude than model.UnchangedEpsilon count as unchanged.
func Classify(percent float64) Direction {
	if math.Abs(percent) < model.UnchangedEpsilon {
		return Unchanged
	}
	if percent > 0 {
		return Rise
	}
	return Drop
}

// IsSignificantDrop reports whether a percent change crosses the
// notification threshold.
func IsSignificantDrop(percent float64) bool {
	return percent <= model.SignificantDropPercent
}

// Compute derives the full Change for a previous/current price pair.
func Compute(previous, current float64) Change {
	percent := ChangePercent(previous, current)
	return Change{
		Percent:     percent,
		Direction:   Classify(percent),
		Significant: IsSignificantDrop(percent),
	}
}

// FormatPercent renders a change for display: literally "0%" when unchanged,
// otherwise a sign-prefixed one-decimal percentage such as "-8.1%".
func FormatPercent(percent float64) string {
	if Classify(percent) == Unchanged {
		return "0%"
	}
	return fmt.Sprintf("%+.1f%%", percent)
}
