package recurring

import "math"

type frequencyBucket struct {
	freq     Frequency
	min, max int
}

// Inclusive, non-overlapping day ranges
var frequencyBuckets = []frequencyBucket{
	{FrequencyWeekly, 5, 10},
	{FrequencyBiWeekly, 11, 19},
	{FrequencyMonthly, 20, 40},
	{FrequencyBiMonthly, 41, 75},
	{FrequencyQuarterly, 76, 120},
}

// ClassifyFrequency maps a mean interval to a cadence. The interval is
// rounded to whole days first so the integer buckets leave no fractional gaps.
func ClassifyFrequency(meanInterval float64) Frequency {
	days := int(math.Round(meanInterval))
	for _, b := range frequencyBuckets {
		if days >= b.min && days <= b.max {
			return b.freq
		}
	}
	return FrequencyNone
}
