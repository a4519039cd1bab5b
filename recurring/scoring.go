package recurring

import (
	"fmt"
	"time"
)

const (
	baseConfidence = 50
	maxConfidence  = 99
)

// Assessment is a merchant (or amount cluster) that cleared every gate
type Assessment struct {
	Merchant   string
	Stats      MerchantStats
	Frequency  Frequency
	Regularity Regularity
	Confidence int
}

// Assess runs the hard gates over a deduplicated occurrence list and scores
// the survivors. A rejected merchant always comes back with a reason.
func Assess(merchant string, occ []Occurrence, category string, p Params) (*Assessment, *RejectionRecord) {
	reject := func(format string, args ...interface{}) (*Assessment, *RejectionRecord) {
		return nil, &RejectionRecord{
			Merchant:        merchant,
			Reason:          fmt.Sprintf(format, args...),
			OccurrenceCount: len(occ),
		}
	}

	if merchant == "" {
		return reject(ReasonUnresolvableMerchant)
	}
	if len(occ) < p.MinOccurrences {
		return reject("insufficient occurrences: %d < %d", len(occ), p.MinOccurrences)
	}

	stats := ComputeStats(occ)
	if !stats.HasIntervals {
		return reject("no valid intervals between occurrences")
	}

	freq := ClassifyFrequency(stats.MeanInterval)
	if !freq.IsPeriodic() {
		return reject("no recurring cadence: mean interval %.1f days", stats.MeanInterval)
	}

	reg := CheckRegularity(stats.Intervals, freq, stats.Count, p)
	if !reg.IsRegular {
		return reject("irregular %s intervals: match ratio %.2f < %.2f", freq, reg.MatchRatio, p.MinMatchRatio)
	}

	maxCV := p.StrictMaxCV
	if stats.Count >= p.RelaxedMinOccurrences {
		maxCV = p.RelaxedMaxCV
	}
	if stats.CV > maxCV {
		return reject("amount too variable: cv %.2f > %.2f", stats.CV, maxCV)
	}

	if entry, excluded := p.IsExcludedCategory(category); excluded && stats.CV >= p.CategoryOverrideCV {
		return reject("excluded category %q (matched %q) with cv %.2f", category, entry, stats.CV)
	}

	return &Assessment{
		Merchant:   merchant,
		Stats:      stats,
		Frequency:  freq,
		Regularity: reg,
		Confidence: Confidence(stats.CV, stats.Count, reg),
	}, nil
}

// Confidence combines amount stability, history length and cadence fit into 0-99
func Confidence(cv float64, occurrences int, reg Regularity) int {
	score := baseConfidence

	switch {
	case cv <= 0.05:
		score += 25
	case cv <= 0.15:
		score += 20
	case cv <= 0.25:
		score += 15
	case cv <= 0.35:
		score += 10
	case cv <= 0.55:
		score += 5
	}

	switch {
	case occurrences >= 8:
		score += 10
	case occurrences >= 5:
		score += 5
	}

	if reg.MatchRatio > 0.8 {
		score += 10
	}
	if reg.Tight {
		score += 5
	}

	if score > maxConfidence {
		score = maxConfidence
	}
	return score
}

// LifecycleAt reports whether a bill last seen on last is still active at now
func LifecycleAt(last time.Time, f Frequency, now time.Time, p Params) LifecycleState {
	if DaysBetween(last, now) > p.CutoffDays(f) {
		return StateDormant
	}
	return StateActive
}
