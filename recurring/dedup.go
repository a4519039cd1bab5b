package recurring

import (
	"math"
	"sort"
)

// SortOccurrences orders occurrences chronologically, breaking ties by amount
// so the order is stable across runs.
func SortOccurrences(occ []Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		if !occ[i].Date.Equal(occ[j].Date) {
			return occ[i].Date.Before(occ[j].Date)
		}
		return occ[i].Amount < occ[j].Amount
	})
}

// Deduplicate collapses duplicate postings of one bill (for example the same
// charge landing on two linked accounts). It is a single greedy pass over the
// chronologically sorted list: an occurrence is dropped in favour of the last
// kept one when it falls within the day window and its amount differs by less
// than max(ratio * kept amount, floor).
func Deduplicate(occ []Occurrence, p Params) []Occurrence {
	if len(occ) <= 1 {
		return append([]Occurrence(nil), occ...)
	}

	sorted := append([]Occurrence(nil), occ...)
	SortOccurrences(sorted)

	kept := make([]Occurrence, 0, len(sorted))
	kept = append(kept, sorted[0])
	for _, o := range sorted[1:] {
		prev := kept[len(kept)-1]
		gap := DaysBetween(prev.Date, o.Date)
		tolerance := math.Max(p.DedupAmountRatio*prev.Amount, p.DedupAmountFloor)
		if gap <= p.DedupWindowDays && math.Abs(o.Amount-prev.Amount) < tolerance {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// ClusterByAmount partitions occurrences into amount bands. Sorted by amount,
// a new band starts whenever an amount exceeds its predecessor by more than
// gapRatio. Each band is returned in chronological order, bands ordered by
// ascending amount.
func ClusterByAmount(occ []Occurrence, gapRatio float64) [][]Occurrence {
	if len(occ) == 0 {
		return nil
	}

	byAmount := append([]Occurrence(nil), occ...)
	sort.SliceStable(byAmount, func(i, j int) bool {
		if byAmount[i].Amount != byAmount[j].Amount {
			return byAmount[i].Amount < byAmount[j].Amount
		}
		return byAmount[i].Date.Before(byAmount[j].Date)
	})

	var clusters [][]Occurrence
	current := []Occurrence{byAmount[0]}
	for _, o := range byAmount[1:] {
		prev := current[len(current)-1]
		if o.Amount > prev.Amount*(1+gapRatio) {
			clusters = append(clusters, current)
			current = nil
		}
		current = append(current, o)
	}
	clusters = append(clusters, current)

	for _, c := range clusters {
		SortOccurrences(c)
	}
	return clusters
}
