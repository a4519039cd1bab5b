package recurring

import "math"

// Regularity describes how well observed intervals fit a cadence
type Regularity struct {
	IsRegular  bool
	MatchRatio float64
	// Tight is set when every interval lies within 10% of the cadence
	Tight bool
}

// CheckRegularity scores intervals against the canonical day-count of f.
// An interval matches when it lies within tolerance (fractional) of the
// canonical count. Fewer than three occurrences skip the check.
func CheckRegularity(intervals []int, f Frequency, occurrences int, p Params) Regularity {
	canonical := float64(f.CanonicalDays())
	if canonical == 0 || len(intervals) == 0 {
		return Regularity{}
	}

	matches, tight := 0, 0
	for _, d := range intervals {
		diff := math.Abs(float64(d) - canonical)
		if diff <= p.RegularityTolerance*canonical {
			matches++
		}
		if diff <= 0.10*canonical {
			tight++
		}
	}

	r := Regularity{
		MatchRatio: float64(matches) / float64(len(intervals)),
		Tight:      tight == len(intervals),
	}
	if occurrences < 3 {
		r.IsRegular = true
		return r
	}
	r.IsRegular = r.MatchRatio >= p.MinMatchRatio
	return r
}
