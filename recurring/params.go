package recurring

import "strings"

// Params holds every tunable threshold of the engine
type Params struct {
	MinOccurrences int

	// Deduplication
	DedupWindowDays  int
	DedupAmountRatio float64
	DedupAmountFloor float64

	// Amount clustering: a new cluster starts when an amount exceeds the
	// previous (sorted) amount by more than this ratio
	ClusterGapRatio float64

	// Regularity
	RegularityTolerance float64
	MinMatchRatio       float64

	// Amount stability
	StrictMaxCV           float64
	RelaxedMaxCV          float64
	RelaxedMinOccurrences int
	CategoryOverrideCV    float64

	ExcludedCategories []string

	// Lifecycle
	DormancyGraceDays int
	PaymentWindowDays int
	DriftRatio        float64

	// Splitter fallback rule
	SplitAmountRatio float64
}

// DefaultParams returns the production thresholds
func DefaultParams() Params {
	return Params{
		MinOccurrences:        3,
		DedupWindowDays:       5,
		DedupAmountRatio:      0.20,
		DedupAmountFloor:      1.00,
		ClusterGapRatio:       0.30,
		RegularityTolerance:   0.50,
		MinMatchRatio:         0.40,
		StrictMaxCV:           0.35,
		RelaxedMaxCV:          0.55,
		RelaxedMinOccurrences: 5,
		CategoryOverrideCV:    0.10,
		ExcludedCategories:    DefaultExcludedCategories(),
		DormancyGraceDays:     60,
		PaymentWindowDays:     3,
		DriftRatio:            0.10,
		SplitAmountRatio:      0.50,
	}
}

// DefaultExcludedCategories lists category fragments that are inherently non-recurring
func DefaultExcludedCategories() []string {
	return []string{
		"dining",
		"restaurants",
		"fast food",
		"coffee",
		"groceries",
		// "gas" alone would also match gas utility bills
		"gas station",
		"fuel",
		"shopping",
		"travel",
	}
}

// CutoffDays is the cadence-appropriate window after the last occurrence
// during which a bill is still considered active.
func (p Params) CutoffDays(f Frequency) int {
	cutoff := p.DormancyGraceDays
	if twoCycles := 2 * f.CanonicalDays(); twoCycles > cutoff {
		cutoff = twoCycles
	}
	return cutoff
}

// IsExcludedCategory reports whether category contains any deny-list entry.
// Matching is case-insensitive substring matching.
func (p Params) IsExcludedCategory(category string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return "", false
	}
	for _, entry := range p.ExcludedCategories {
		e := strings.ToLower(strings.TrimSpace(entry))
		if e != "" && strings.Contains(c, e) {
			return e, true
		}
	}
	return "", false
}
