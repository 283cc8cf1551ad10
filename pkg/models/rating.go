package models

import "math"

const (
	RatingStep = 0.5
	MaxRating  = 5.0
)

// RatingLevels returns the ten selectable levels, 0.5 through 5.0.
func RatingLevels() []float64 {
	levels := make([]float64, 0, int(MaxRating/RatingStep))
	for v := RatingStep; v <= MaxRating; v += RatingStep {
		levels = append(levels, v)
	}
	return levels
}

// IsRatingLevel reports whether v is one of the selectable levels. Zero
// means "unrated" and is accepted only when allowZero is set.
func IsRatingLevel(v float64, allowZero bool) bool {
	if v == 0 {
		return allowZero
	}
	if v < RatingStep || v > MaxRating {
		return false
	}
	steps := v / RatingStep
	return steps == math.Trunc(steps)
}
