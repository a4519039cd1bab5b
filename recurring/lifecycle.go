package recurring

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names a lifecycle transition observed by the tracker
type EventKind string

const (
	EventPaid          EventKind = "paid"
	EventAmountDrifted EventKind = "amount_drifted"
	EventRescheduled   EventKind = "rescheduled"
	EventDormant       EventKind = "dormant"
)

// BillEvent records one transition of a persisted bill
type BillEvent struct {
	BillID         int64           `json:"bill_id"`
	MerchantName   string          `json:"merchant_name"`
	Kind           EventKind       `json:"kind"`
	OccurredOn     time.Time       `json:"occurred_on"`
	Amount         decimal.Decimal `json:"amount"`
	PreviousAmount decimal.Decimal `json:"previous_amount"`
	Delta          decimal.Decimal `json:"delta"`
}

// ScanOutcome lists the bills that changed and the events explaining why
type ScanOutcome struct {
	Updated []DetectedBill `json:"updated"`
	Events  []BillEvent    `json:"events"`
}

// LifecycleTracker advances persisted bills as new transactions arrive.
// Dormant bills are left untouched; only a full regeneration can detect
// them again.
type LifecycleTracker struct {
	params Params
}

// NewLifecycleTracker creates a tracker with the given thresholds
func NewLifecycleTracker(params Params) *LifecycleTracker {
	return &LifecycleTracker{params: params}
}

// Advance applies txns to bills as of now. Transactions on or before a
// bill's last transaction date are ignored, so replaying the same input is a
// no-op.
func (t *LifecycleTracker) Advance(now time.Time, bills []DetectedBill, txns []Transaction) ScanOutcome {
	working := make([]DetectedBill, len(bills))
	copy(working, bills)

	byKey := make(map[string][]int)
	for i, b := range working {
		if b.LifecycleState == StateDormant || !b.Frequency.IsPeriodic() {
			continue
		}
		key := b.MerchantKey
		if key == "" {
			key = NormalizeMerchant(b.MerchantName)
		}
		byKey[key] = append(byKey[key], i)
	}

	expenses := make([]Transaction, 0, len(txns))
	for _, tx := range txns {
		if tx.IsExpense() {
			expenses = append(expenses, tx)
		}
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.Before(expenses[j].Date)
		}
		return expenses[i].ID < expenses[j].ID
	})

	var outcome ScanOutcome
	for _, tx := range expenses {
		candidates := byKey[MerchantKey(tx.Description, tx.MerchantHint)]
		idx := closestBill(working, candidates, tx)
		if idx < 0 {
			continue
		}
		if ev, ok := t.apply(&working[idx], tx); ok {
			outcome.Events = append(outcome.Events, ev)
		}
	}

	today := CalendarDay(now)
	for _, indexes := range byKey {
		for _, i := range indexes {
			b := &working[i]
			if LifecycleAt(b.LastTransactionDate, b.Frequency, now, t.params) == StateDormant {
				b.LifecycleState = StateDormant
				b.IsActive = false
				outcome.Events = append(outcome.Events, BillEvent{
					BillID:       b.ID,
					MerchantName: b.MerchantName,
					Kind:         EventDormant,
					OccurredOn:   today,
				})
				continue
			}
			b.NextPredictedDate = rollForward(b.NextPredictedDate, b.Frequency, now)
		}
	}

	for i := range working {
		if billChanged(bills[i], working[i]) {
			outcome.Updated = append(outcome.Updated, working[i])
		}
	}
	sortBills(outcome.Updated)
	sort.SliceStable(outcome.Events, func(i, j int) bool {
		a, b := outcome.Events[i], outcome.Events[j]
		if !a.OccurredOn.Equal(b.OccurredOn) {
			return a.OccurredOn.Before(b.OccurredOn)
		}
		return a.MerchantName < b.MerchantName
	})
	return outcome
}

// apply moves one bill forward by one transaction
func (t *LifecycleTracker) apply(b *DetectedBill, tx Transaction) (BillEvent, bool) {
	date := CalendarDay(tx.Date)
	step := b.Frequency.CanonicalDays()

	fromSchedule := DaysBetween(b.NextPredictedDate, date)
	if fromSchedule < 0 {
		fromSchedule = -fromSchedule
	}
	onSchedule := fromSchedule <= t.params.PaymentWindowDays

	gap := DaysBetween(b.LastTransactionDate, date)
	onCadence := math.Abs(float64(gap-step)) <= t.params.RegularityTolerance*float64(step)
	if !onSchedule && !onCadence {
		return BillEvent{}, false
	}

	ev := BillEvent{
		BillID:       b.ID,
		MerchantName: b.MerchantName,
		OccurredOn:   date,
		Amount:       tx.Amount,
	}

	if relativeDiff(tx.Amount, b.ExpectedAmount) > t.params.DriftRatio {
		ev.Kind = EventAmountDrifted
		ev.PreviousAmount = b.ExpectedAmount
		ev.Delta = tx.Amount.Sub(b.ExpectedAmount)
		b.ExpectedAmount = tx.Amount.Round(2)
	} else if onSchedule {
		ev.Kind = EventPaid
	} else {
		ev.Kind = EventRescheduled
	}

	if onSchedule {
		b.NextPredictedDate = CalendarDay(b.NextPredictedDate).AddDate(0, 0, step)
	} else {
		b.NextPredictedDate = date.AddDate(0, 0, step)
	}
	b.LastTransactionDate = date
	b.LifecycleState = StateActive
	b.IsActive = true
	return ev, true
}

// closestBill picks, among bills sharing the merchant key, the one whose
// expected amount is nearest to the transaction and which has not seen it yet
func closestBill(bills []DetectedBill, candidates []int, tx Transaction) int {
	best, bestDiff := -1, math.MaxFloat64
	date := CalendarDay(tx.Date)
	for _, i := range candidates {
		if !date.After(CalendarDay(bills[i].LastTransactionDate)) {
			continue
		}
		if d := relativeDiff(tx.Amount, bills[i].ExpectedAmount); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

func relativeDiff(amount, expected decimal.Decimal) float64 {
	if expected.IsZero() {
		return math.MaxFloat64
	}
	return amount.Sub(expected).Abs().Div(expected.Abs()).InexactFloat64()
}

// rollForward advances next along its own schedule until it is after now
func rollForward(next time.Time, f Frequency, now time.Time) time.Time {
	step := f.CanonicalDays()
	if step == 0 || next.After(CalendarDay(now)) {
		return next
	}
	return NextPredictedDate(CalendarDay(next).AddDate(0, 0, -step), f, now)
}

func billChanged(a, b DetectedBill) bool {
	return !a.ExpectedAmount.Equal(b.ExpectedAmount) ||
		!a.NextPredictedDate.Equal(b.NextPredictedDate) ||
		!a.LastTransactionDate.Equal(b.LastTransactionDate) ||
		a.IsActive != b.IsActive ||
		a.LifecycleState != b.LifecycleState
}
