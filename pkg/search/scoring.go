package search

import (
	"math"
	"time"
)

// Decay returns rate^daysOld, the multiplier applied to a hit's relevance.
func Decay(rate float64, daysOld int) float64 {
	return math.Pow(rate, float64(daysOld))
}

// RecencyScore combines semantic similarity with age:
// (1 - distance) * rate^daysOld.
func RecencyScore(distance float64, daysOld int, rate float64) float64 {
	return (1 - distance) * Decay(rate, daysOld)
}

// CombinedScore fuses the scaled semantic and lexical scores of a hybrid hit
// and decays the weighted sum by age.
func CombinedScore(semantic, lexical, semanticWeight, lexicalWeight float64, daysOld int, rate float64) float64 {
	return (semantic*semanticWeight + lexical*lexicalWeight) * Decay(rate, daysOld)
}

// DaysOld counts whole calendar days from date to now, never negative.
func DaysOld(now, date time.Time) int {
	today := dateOf(now)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	days := int(today.Sub(day).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
