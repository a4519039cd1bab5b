package recurring

import (
	"math"
	"testing"
	"time"
)

func TestComputeStats(t *testing.T) {
	start := day(2024, time.January, 1)
	stats := ComputeStats([]Occurrence{
		occ(start, 10),
		occ(start.AddDate(0, 0, 30), 12),
		occ(start.AddDate(0, 0, 61), 14),
	})

	if stats.Count != 3 {
		t.Errorf("expected count 3, got %d", stats.Count)
	}
	if stats.MeanAmount != 12 {
		t.Errorf("expected mean 12, got %v", stats.MeanAmount)
	}
	// Bessel-corrected: sqrt((4+0+4)/2)
	if math.Abs(stats.StdDevAmount-2) > 1e-9 {
		t.Errorf("expected stddev 2, got %v", stats.StdDevAmount)
	}
	if math.Abs(stats.CV-1.0/6.0) > 1e-9 {
		t.Errorf("expected cv 1/6, got %v", stats.CV)
	}
	if !stats.HasIntervals || stats.MeanInterval != 30.5 {
		t.Errorf("expected mean interval 30.5, got %v (has=%v)", stats.MeanInterval, stats.HasIntervals)
	}
	if !stats.FirstDate.Equal(start) || !stats.LastDate.Equal(start.AddDate(0, 0, 61)) {
		t.Errorf("unexpected first/last dates: %v %v", stats.FirstDate, stats.LastDate)
	}
}

func TestComputeStatsEdgeCases(t *testing.T) {
	start := day(2024, time.May, 10)

	t.Run("single occurrence", func(t *testing.T) {
		stats := ComputeStats([]Occurrence{occ(start, 25)})
		if stats.StdDevAmount != 0 || stats.CV != 0 {
			t.Errorf("expected zero spread, got sd=%v cv=%v", stats.StdDevAmount, stats.CV)
		}
		if stats.HasIntervals {
			t.Error("expected no intervals for a single occurrence")
		}
	})

	t.Run("same-day repeats discarded", func(t *testing.T) {
		stats := ComputeStats([]Occurrence{occ(start, 25), occ(start, 25), occ(start.AddDate(0, 0, 14), 25)})
		if len(stats.Intervals) != 1 || stats.Intervals[0] != 14 {
			t.Errorf("expected intervals [14], got %v", stats.Intervals)
		}
	})

	t.Run("only same-day repeats", func(t *testing.T) {
		stats := ComputeStats([]Occurrence{occ(start, 25), occ(start, 26)})
		if stats.HasIntervals {
			t.Errorf("expected no valid intervals, got %v", stats.Intervals)
		}
	})
}
