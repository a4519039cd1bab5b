package recurring

import "math"

// ComputeStats derives amount and interval statistics from a deduplicated,
// chronologically sorted occurrence list with at least one entry.
func ComputeStats(occ []Occurrence) MerchantStats {
	stats := MerchantStats{
		Count:       len(occ),
		Occurrences: occ,
	}
	if len(occ) == 0 {
		return stats
	}

	stats.FirstDate = occ[0].Date
	stats.LastDate = occ[len(occ)-1].Date

	amounts := make([]float64, len(occ))
	for i, o := range occ {
		amounts[i] = o.Amount
	}
	stats.MeanAmount = mean(amounts)
	stats.StdDevAmount = sampleStdDev(amounts, stats.MeanAmount)
	if stats.MeanAmount > 0 {
		stats.CV = stats.StdDevAmount / stats.MeanAmount
	}

	stats.Intervals = Intervals(occ)
	if len(stats.Intervals) > 0 {
		sum := 0
		for _, d := range stats.Intervals {
			sum += d
		}
		stats.MeanInterval = float64(sum) / float64(len(stats.Intervals))
		stats.HasIntervals = true
	}
	return stats
}

// Intervals returns the whole-day gaps between consecutive occurrences,
// discarding same-day repeats.
func Intervals(occ []Occurrence) []int {
	var intervals []int
	for i := 1; i < len(occ); i++ {
		if d := DaysBetween(occ[i-1].Date, occ[i].Date); d > 0 {
			intervals = append(intervals, d)
		}
	}
	return intervals
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev uses Bessel's correction; fewer than two values yield 0
func sampleStdDev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
