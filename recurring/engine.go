package recurring

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billtrack/logger"
)

// Split group ids are name-based so regeneration stays byte-identical
var splitGroupNamespace = uuid.MustParse("6f1c5a2e-3b7d-4c8e-9a10-2d4e6f8a0b1c")

// SplitGroupID returns the deterministic group id of a merchant's split bills
func SplitGroupID(userID, merchantKey string) uuid.UUID {
	return uuid.NewSHA1(splitGroupNamespace, []byte(userID+"/"+merchantKey))
}

// Engine is the full-batch detector. It is stateless between calls.
type Engine struct {
	params  Params
	advisor ClusterSplitAdvisor
}

// NewEngine creates an engine; a nil advisor uses the deterministic rule
func NewEngine(params Params, advisor ClusterSplitAdvisor) *Engine {
	if advisor == nil {
		advisor = RuleAdvisor{AmountRatio: params.SplitAmountRatio}
	}
	return &Engine{params: params, advisor: advisor}
}

type merchantGroup struct {
	occurrences []Occurrence
	categories  map[string]int
}

// Detect recomputes the complete bill set of one user from scratch.
// Only expense transactions are considered. Output is sorted, so identical
// input yields identical output.
func (e *Engine) Detect(ctx context.Context, userID string, now time.Time, txns []Transaction) Result {
	log := logger.FromContext(ctx)

	groups := make(map[string]*merchantGroup)
	unresolved := make(map[string]int)
	for _, t := range txns {
		if !t.IsExpense() {
			continue
		}
		key := MerchantKey(t.Description, t.MerchantHint)
		if key == "" {
			unresolved[strings.TrimSpace(t.Description)]++
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &merchantGroup{categories: make(map[string]int)}
			groups[key] = g
		}
		g.occurrences = append(g.occurrences, Occurrence{
			Date:   CalendarDay(t.Date),
			Amount: t.Amount.InexactFloat64(),
		})
		if c := strings.TrimSpace(t.Category); c != "" {
			g.categories[c]++
		}
	}

	var result Result
	for raw, count := range unresolved {
		result.Rejections = append(result.Rejections, RejectionRecord{
			Merchant:        raw,
			Reason:          ReasonUnresolvableMerchant,
			OccurrenceCount: count,
		})
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		bills, rejections := e.detectMerchant(ctx, userID, key, groups[key], now)
		result.Bills = append(result.Bills, bills...)
		result.Rejections = append(result.Rejections, rejections...)
	}

	sortBills(result.Bills)
	sort.SliceStable(result.Rejections, func(i, j int) bool {
		a, b := result.Rejections[i], result.Rejections[j]
		if a.Merchant != b.Merchant {
			return a.Merchant < b.Merchant
		}
		return a.Reason < b.Reason
	})

	log.Info().
		Str("user_id", userID).
		Int("merchants", len(groups)).
		Int("bills", len(result.Bills)).
		Int("rejections", len(result.Rejections)).
		Msg("recurring detection complete")
	return result
}

// detectMerchant never lets one merchant's failure escape into the batch
func (e *Engine) detectMerchant(ctx context.Context, userID, key string, g *merchantGroup, now time.Time) (bills []DetectedBill, rejections []RejectionRecord) {
	defer func() {
		if r := recover(); r != nil {
			bills = nil
			rejections = []RejectionRecord{{
				Merchant:        key,
				Reason:          fmt.Sprintf("internal error: %v", r),
				OccurrenceCount: len(g.occurrences),
			}}
		}
	}()

	log := logger.FromContext(ctx)
	category := dominantCategory(g.categories)

	whole, wholeRej := Assess(key, Deduplicate(g.occurrences, e.params), category, e.params)

	// Amount bands only take over when at least two of them stand on their own
	var accepted []*Assessment
	clusters := ClusterByAmount(g.occurrences, e.params.ClusterGapRatio)
	if len(clusters) > 1 {
		for _, cluster := range clusters {
			deduped := Deduplicate(cluster, e.params)
			a, rej := Assess(key, deduped, category, e.params)
			if rej != nil {
				rej.Reason = fmt.Sprintf("amount cluster %.2f: %s", meanAmount(deduped), rej.Reason)
				rejections = append(rejections, *rej)
				continue
			}
			accepted = append(accepted, a)
		}
	}

	if len(accepted) < 2 {
		switch {
		case whole != nil:
			return []DetectedBill{e.newBill(userID, key, key, whole, now)}, nil
		case len(accepted) == 1:
			log.Debug().Str("merchant", key).Str("reason", wholeRej.Reason).Msg("merchant rejected, one amount band kept")
			return []DetectedBill{e.newBill(userID, key, key, accepted[0], now)}, rejections
		default:
			log.Debug().Str("merchant", key).Str("reason", wholeRej.Reason).Msg("merchant rejected")
			return nil, []RejectionRecord{*wholeRej}
		}
	}

	summaries := make([]Cluster, len(accepted))
	for i, a := range accepted {
		summaries[i] = Cluster{
			Amount:      roundCents(a.Stats.MeanAmount),
			Frequency:   a.Frequency,
			Occurrences: a.Stats.Count,
			Confidence:  a.Confidence,
			LastDate:    a.Stats.LastDate,
		}
	}

	verdict, err := e.advisor.AdviseSplit(ctx, key, summaries)
	if err == nil {
		err = verdict.Validate(summaries)
	}
	if err != nil {
		log.Warn().Err(err).Str("merchant", key).Msg("split advice unusable, applying rule")
		verdict, _ = RuleAdvisor{AmountRatio: e.params.SplitAmountRatio}.AdviseSplit(ctx, key, summaries)
	}
	log.Debug().
		Str("merchant", key).
		Str("decision", string(verdict.Decision)).
		Str("source", string(verdict.Source)).
		Str("reasoning", verdict.Reasoning).
		Msg("multi-pattern merchant resolved")

	if !verdict.ShouldSplit() {
		primary := primaryAssessment(accepted)
		for _, a := range accepted {
			if a == primary {
				continue
			}
			rejections = append(rejections, RejectionRecord{
				Merchant:        key,
				Reason:          fmt.Sprintf("amount cluster %.2f: %s", a.Stats.MeanAmount, ReasonMergedIntoPrimary),
				OccurrenceCount: a.Stats.Count,
			})
		}
		return []DetectedBill{e.newBill(userID, key, key, primary, now)}, rejections
	}

	group := uuid.NullUUID{UUID: SplitGroupID(userID, key), Valid: true}
	names := splitNames(key, verdict.Labels)
	if names == nil {
		log.Warn().Str("merchant", key).Msg("split labels collide, applying rule labels")
		names = splitNames(key, RuleLabels(summaries))
	}
	for i, a := range accepted {
		bill := e.newBill(userID, key, names[i], a, now)
		bill.SplitGroupID = group
		bills = append(bills, bill)
	}
	return bills, rejections
}

// splitNames builds "key (label)" bill names within MaxBillNameLength.
// It returns nil when a label is blank or two names collide.
func splitNames(key string, labels []ClusterLabel) []string {
	room := MaxBillNameLength - utf8.RuneCountInString(key) - len(" ()")
	names := make([]string, len(labels))
	seen := make(map[string]bool, len(labels))
	for i, l := range labels {
		label := truncateRunes(collapseSpaces(l.Description), room)
		fold := strings.ToLower(label)
		if label == "" || seen[fold] {
			return nil
		}
		seen[fold] = true
		names[i] = fmt.Sprintf("%s (%s)", key, label)
	}
	return names
}

func (e *Engine) newBill(userID, key, name string, a *Assessment, now time.Time) DetectedBill {
	last := CalendarDay(a.Stats.LastDate)
	state := LifecycleAt(last, a.Frequency, now, e.params)
	return DetectedBill{
		UserID:              userID,
		MerchantKey:         key,
		MerchantName:        name,
		ExpectedAmount:      decimal.NewFromFloat(a.Stats.MeanAmount).Round(2),
		Frequency:           a.Frequency,
		NextPredictedDate:   NextPredictedDate(last, a.Frequency, now),
		LastTransactionDate: last,
		ConfidenceScore:     a.Confidence,
		IsActive:            state == StateActive,
		LifecycleState:      state,
		AutoDetected:        true,
		OccurrenceCount:     a.Stats.Count,
	}
}

// primaryAssessment picks the strongest pattern: confidence, then history
// length, then amount
func primaryAssessment(accepted []*Assessment) *Assessment {
	best := accepted[0]
	for _, a := range accepted[1:] {
		switch {
		case a.Confidence != best.Confidence:
			if a.Confidence > best.Confidence {
				best = a
			}
		case a.Stats.Count != best.Stats.Count:
			if a.Stats.Count > best.Stats.Count {
				best = a
			}
		case a.Stats.MeanAmount > best.Stats.MeanAmount:
			best = a
		}
	}
	return best
}

// dominantCategory returns the most frequent tag, ties broken alphabetically
func dominantCategory(counts map[string]int) string {
	best, bestCount := "", 0
	for c, n := range counts {
		if n > bestCount || (n == bestCount && c < best) {
			best, bestCount = c, n
		}
	}
	return best
}

func sortBills(bills []DetectedBill) {
	sort.SliceStable(bills, func(i, j int) bool {
		if bills[i].MerchantName != bills[j].MerchantName {
			return bills[i].MerchantName < bills[j].MerchantName
		}
		return bills[i].ExpectedAmount.LessThan(bills[j].ExpectedAmount)
	})
}

func meanAmount(occ []Occurrence) float64 {
	amounts := make([]float64, len(occ))
	for i, o := range occ {
		amounts[i] = o.Amount
	}
	return mean(amounts)
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
