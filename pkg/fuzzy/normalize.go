// Package fuzzy provides text folding and similarity scores for cross-catalog track matching.
package fuzzy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	// DurationWindowMS is the absolute duration difference at which DurationScore reaches zero.
	DurationWindowMS = 10000
	// FullContainment is the score when the target is contained in the candidate.
	FullContainment = 1.0
	// PartialContainment is the score when it is not.
	PartialContainment = 0.5
)

// Fold returns s in NFC form, lower-cased and trimmed, so visually equal strings compare equal.
func Fold(s string) string {
	// cases.Caser is stateful; build one per call.
	return strings.TrimSpace(cases.Lower(language.Und).String(norm.NFC.String(s)))
}

// ContainmentScore returns FullContainment when the folded target is a substring of the
// folded candidate, PartialContainment otherwise.
func ContainmentScore(target, candidate string) float64 {
	if strings.Contains(Fold(candidate), Fold(target)) {
		return FullContainment
	}
	return PartialContainment
}

// DurationScore decays linearly from 1 at equal durations to 0 at DurationWindowMS apart.
func DurationScore(targetMS, candidateMS int64) float64 {
	diff := abs(targetMS - candidateMS)
	score := 1.0 - float64(diff)/DurationWindowMS
	if score < 0 {
		return 0
	}
	return score
}

// DurationDiff returns the absolute difference between two durations in milliseconds.
func DurationDiff(aMS, bMS int64) int64 {
	return abs(aMS - bMS)
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
