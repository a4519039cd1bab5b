package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billtrack/logger"
)

// Cluster summarizes one accepted amount band of a merchant
type Cluster struct {
	Amount      float64   `json:"amount"`
	Frequency   Frequency `json:"frequency"`
	Occurrences int       `json:"occurrences"`
	Confidence  int       `json:"confidence"`
	LastDate    time.Time `json:"last_date"`
}

// SplitDecision is the verdict on a multi-cluster merchant
type SplitDecision string

const (
	DecisionSplit  SplitDecision = "split"
	DecisionSingle SplitDecision = "single"
)

// VerdictSource records which advisor produced a verdict
type VerdictSource string

const (
	SourceAI   VerdictSource = "ai"
	SourceRule VerdictSource = "rule"
)

// ClusterLabel is the human-readable description of one cluster
type ClusterLabel struct {
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Frequency   Frequency `json:"frequency"`
}

// SplitVerdict is the structured answer of a ClusterSplitAdvisor.
// Labels has one entry per input cluster, in input order.
type SplitVerdict struct {
	Decision  SplitDecision  `json:"decision"`
	Reasoning string         `json:"reasoning"`
	Labels    []ClusterLabel `json:"labels"`
	Source    VerdictSource  `json:"source"`
}

// ShouldSplit reports whether each cluster becomes its own bill
func (v SplitVerdict) ShouldSplit() bool {
	return v.Decision == DecisionSplit
}

// Validate checks the verdict against the clusters it answers
func (v SplitVerdict) Validate(clusters []Cluster) error {
	switch v.Decision {
	case DecisionSplit, DecisionSingle:
	default:
		return fmt.Errorf("unknown split decision %q", v.Decision)
	}
	if !v.ShouldSplit() {
		return nil
	}
	if len(v.Labels) != len(clusters) {
		return fmt.Errorf("verdict has %d labels for %d clusters", len(v.Labels), len(clusters))
	}
	// each label becomes part of a bill name, unique per user
	seen := make(map[string]bool, len(v.Labels))
	for _, l := range v.Labels {
		fold := strings.ToLower(collapseSpaces(l.Description))
		if seen[fold] {
			return fmt.Errorf("duplicate label %q", l.Description)
		}
		seen[fold] = true
	}
	return nil
}

// ClusterSplitAdvisor decides whether the clusters of one merchant are
// independent obligations
type ClusterSplitAdvisor interface {
	AdviseSplit(ctx context.Context, merchant string, clusters []Cluster) (SplitVerdict, error)
}

// RuleAdvisor is the deterministic advisor: split only when the largest
// cluster amount exceeds the smallest by more than AmountRatio.
type RuleAdvisor struct {
	AmountRatio float64
}

// AdviseSplit implements ClusterSplitAdvisor
func (r RuleAdvisor) AdviseSplit(_ context.Context, _ string, clusters []Cluster) (SplitVerdict, error) {
	if len(clusters) == 0 {
		return SplitVerdict{}, errors.New("no clusters to advise on")
	}

	smallest, largest := clusters[0].Amount, clusters[0].Amount
	for _, c := range clusters[1:] {
		if c.Amount < smallest {
			smallest = c.Amount
		}
		if c.Amount > largest {
			largest = c.Amount
		}
	}

	v := SplitVerdict{
		Decision: DecisionSingle,
		Labels:   RuleLabels(clusters),
		Source:   SourceRule,
	}
	if largest > smallest*(1+r.AmountRatio) {
		v.Decision = DecisionSplit
		v.Reasoning = fmt.Sprintf("largest amount %.2f exceeds smallest %.2f by more than %.0f%%", largest, smallest, r.AmountRatio*100)
	} else {
		v.Reasoning = fmt.Sprintf("amounts %.2f-%.2f within %.0f%% of each other", smallest, largest, r.AmountRatio*100)
	}
	return v, nil
}

// RuleLabels builds labels such as "Monthly 20.00"
func RuleLabels(clusters []Cluster) []ClusterLabel {
	labels := make([]ClusterLabel, len(clusters))
	for i, c := range clusters {
		labels[i] = ClusterLabel{
			Description: fmt.Sprintf("%s %s", titleFrequency(c.Frequency), decimal.NewFromFloat(c.Amount).StringFixed(2)),
			Amount:      c.Amount,
			Frequency:   c.Frequency,
		}
	}
	return labels
}

func titleFrequency(f Frequency) string {
	s := string(f)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FallbackAdvisor asks Primary first, each attempt bounded by Timeout, and
// falls back to Fallback when every attempt fails or returns an invalid
// verdict. A nil Primary goes straight to Fallback.
type FallbackAdvisor struct {
	Primary  ClusterSplitAdvisor
	Fallback ClusterSplitAdvisor
	Timeout  time.Duration
	Retries  int
}

// NewFallbackAdvisor wires an optional AI advisor in front of the rule advisor
func NewFallbackAdvisor(primary ClusterSplitAdvisor, p Params, timeout time.Duration, retries int) *FallbackAdvisor {
	return &FallbackAdvisor{
		Primary:  primary,
		Fallback: RuleAdvisor{AmountRatio: p.SplitAmountRatio},
		Timeout:  timeout,
		Retries:  retries,
	}
}

// AdviseSplit implements ClusterSplitAdvisor
func (f *FallbackAdvisor) AdviseSplit(ctx context.Context, merchant string, clusters []Cluster) (SplitVerdict, error) {
	log := logger.FromContext(ctx)

	if f.Primary != nil {
		for attempt := 0; attempt <= f.Retries; attempt++ {
			v, err := f.askPrimary(ctx, merchant, clusters)
			if err == nil {
				return v, nil
			}
			log.Warn().Err(err).Str("merchant", merchant).Int("attempt", attempt+1).Msg("split advisor failed")
			if ctx.Err() != nil {
				break
			}
		}
	}
	return f.Fallback.AdviseSplit(ctx, merchant, clusters)
}

func (f *FallbackAdvisor) askPrimary(ctx context.Context, merchant string, clusters []Cluster) (SplitVerdict, error) {
	callCtx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	v, err := f.Primary.AdviseSplit(callCtx, merchant, clusters)
	if err != nil {
		return SplitVerdict{}, err
	}
	if err := v.Validate(clusters); err != nil {
		return SplitVerdict{}, err
	}
	return v, nil
}
