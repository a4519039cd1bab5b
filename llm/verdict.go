package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"billtrack/recurring"
)

// ErrMalformedVerdict is returned when the model answer is not a usable verdict
var ErrMalformedVerdict = errors.New("malformed split verdict")

type splitResponse struct {
	ShouldSplit *bool  `json:"should_split"`
	Reasoning   string `json:"reasoning"`
	Clusters    []struct {
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
		Frequency   string  `json:"frequency"`
	} `json:"clusters"`
}

// ParseVerdict turns a model answer into a verdict for clusters. Markdown
// fences and prose around the JSON object are tolerated; labels are matched
// back to clusters by amount.
func ParseVerdict(content string, clusters []recurring.Cluster) (recurring.SplitVerdict, error) {
	raw := extractJSON(content)
	if raw == "" {
		return recurring.SplitVerdict{}, fmt.Errorf("%w: no JSON object in response", ErrMalformedVerdict)
	}

	var resp splitResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return recurring.SplitVerdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if resp.ShouldSplit == nil {
		return recurring.SplitVerdict{}, fmt.Errorf("%w: missing should_split", ErrMalformedVerdict)
	}

	v := recurring.SplitVerdict{
		Decision:  recurring.DecisionSingle,
		Reasoning: strings.TrimSpace(resp.Reasoning),
		Source:    recurring.SourceAI,
	}
	if *resp.ShouldSplit {
		v.Decision = recurring.DecisionSplit
	}

	labels := make([]recurring.ClusterLabel, 0, len(resp.Clusters))
	for _, c := range resp.Clusters {
		freq, err := parseFrequency(c.Frequency)
		if err != nil {
			return recurring.SplitVerdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
		}
		labels = append(labels, recurring.ClusterLabel{
			Description: strings.TrimSpace(c.Description),
			Amount:      c.Amount,
			Frequency:   freq,
		})
	}
	v.Labels = alignLabels(labels, clusters)

	if err := v.Validate(clusters); err != nil {
		return recurring.SplitVerdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	return v, nil
}

// parseFrequency accepts the spellings models commonly produce
func parseFrequency(s string) (recurring.Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return recurring.FrequencyNone, nil
	case "biweekly", "fortnightly":
		s = string(recurring.FrequencyBiWeekly)
	case "bimonthly":
		s = string(recurring.FrequencyBiMonthly)
	}
	return recurring.ParseFrequency(s)
}

// extractJSON returns the outermost {...} of s, or "" when there is none
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// alignLabels reorders labels so labels[i] describes clusters[i], pairing
// each cluster with the unused label of nearest amount. Mismatched counts are
// returned untouched for Validate to reject.
func alignLabels(labels []recurring.ClusterLabel, clusters []recurring.Cluster) []recurring.ClusterLabel {
	if len(labels) != len(clusters) {
		return labels
	}

	used := make([]bool, len(labels))
	out := make([]recurring.ClusterLabel, len(clusters))
	for i, c := range clusters {
		best, bestDiff := -1, math.MaxFloat64
		for j, l := range labels {
			if used[j] {
				continue
			}
			if d := math.Abs(l.Amount - c.Amount); d < bestDiff {
				best, bestDiff = j, d
			}
		}
		used[best] = true
		out[i] = labels[best]
	}
	return out
}
