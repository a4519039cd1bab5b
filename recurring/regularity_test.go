package recurring

import "testing"

func TestCheckRegularity(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		name        string
		intervals   []int
		freq        Frequency
		occurrences int
		wantRegular bool
		wantRatio   float64
		wantTight   bool
	}{
		{"steady monthly", []int{31, 29, 31, 30, 31}, FrequencyMonthly, 6, true, 1, true},
		{"jittery monthly", []int{22, 38, 30, 41}, FrequencyMonthly, 5, true, 1, false},
		{"two of five at threshold", []int{30, 100, 100, 100, 30}, FrequencyMonthly, 6, true, 0.4, false},
		{"one of five rejected", []int{30, 100, 100, 100, 100}, FrequencyMonthly, 6, false, 0.2, false},
		{"too few occurrences to judge", []int{100}, FrequencyMonthly, 2, true, 0, false},
		{"weekly", []int{7, 7, 8, 6}, FrequencyWeekly, 5, true, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckRegularity(tt.intervals, tt.freq, tt.occurrences, p)
			if got.IsRegular != tt.wantRegular {
				t.Errorf("IsRegular = %v, want %v", got.IsRegular, tt.wantRegular)
			}
			if got.MatchRatio != tt.wantRatio {
				t.Errorf("MatchRatio = %v, want %v", got.MatchRatio, tt.wantRatio)
			}
			if got.Tight != tt.wantTight {
				t.Errorf("Tight = %v, want %v", got.Tight, tt.wantTight)
			}
		})
	}
}
