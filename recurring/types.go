// Package recurring detects recurring bills in a user's transaction history and
// tracks each detected bill through its lifecycle.
//
// The package is pure: it never reads the clock, the database or the network.
// Callers pass "now" explicitly and supply a ClusterSplitAdvisor for the one
// decision that may consult an external service.
package recurring

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency is the classified cadence of a recurring bill
type Frequency string

const (
	FrequencyNone      Frequency = "none"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi-weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyBiMonthly Frequency = "bi-monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// CanonicalDays returns the nominal day-count of one cycle, or 0 for FrequencyNone.
func (f Frequency) CanonicalDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiWeekly:
		return 14
	case FrequencyMonthly:
		return 30
	case FrequencyBiMonthly:
		return 60
	case FrequencyQuarterly:
		return 90
	default:
		return 0
	}
}

// IsPeriodic reports whether f is one of the recurring cadences
func (f Frequency) IsPeriodic() bool {
	return f.CanonicalDays() > 0
}

// ParseFrequency converts a persisted value back into a Frequency
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if f == FrequencyNone || f.IsPeriodic() {
		return f, nil
	}
	return FrequencyNone, fmt.Errorf("unknown frequency %q", s)
}

// LifecycleState is the persisted lifecycle of a bill
type LifecycleState string

const (
	StateActive  LifecycleState = "active"
	StateDormant LifecycleState = "dormant"
)

// ParseLifecycleState converts a persisted value back into a LifecycleState
func ParseLifecycleState(s string) (LifecycleState, error) {
	switch LifecycleState(s) {
	case StateActive, StateDormant:
		return LifecycleState(s), nil
	}
	return StateActive, fmt.Errorf("unknown lifecycle state %q", s)
}

// Transaction is one read-only input transaction.
// Amount is signed; positive values are expenses.
type Transaction struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	MerchantHint string          `json:"merchant_hint,omitempty"`
	Category     string          `json:"category,omitempty"`
}

// IsExpense reports whether the transaction carries the expense sign
func (t Transaction) IsExpense() bool {
	return t.Amount.IsPositive()
}

// Occurrence is one (date, amount) point of a merchant's history
type Occurrence struct {
	Date   time.Time
	Amount float64
}

// MerchantStats holds the per-run statistics of one merchant (or amount cluster)
type MerchantStats struct {
	Count        int
	FirstDate    time.Time
	LastDate     time.Time
	Occurrences  []Occurrence
	MeanAmount   float64
	StdDevAmount float64
	CV           float64
	Intervals    []int
	MeanInterval float64
	HasIntervals bool
}

// DetectedBill is the persisted output of the engine.
// ID is zero until the bill has been stored.
type DetectedBill struct {
	ID                  int64           `json:"id,omitempty"`
	UserID              string          `json:"user_id"`
	MerchantKey         string          `json:"merchant_key"`
	MerchantName        string          `json:"merchant_name"`
	ExpectedAmount      decimal.Decimal `json:"expected_amount"`
	Frequency           Frequency       `json:"frequency"`
	NextPredictedDate   time.Time       `json:"next_predicted_date"`
	LastTransactionDate time.Time       `json:"last_transaction_date"`
	ConfidenceScore     int             `json:"confidence_score"`
	IsActive            bool            `json:"is_active"`
	LifecycleState      LifecycleState  `json:"lifecycle_state"`
	AutoDetected        bool            `json:"auto_detected"`
	SplitGroupID        uuid.NullUUID   `json:"split_group_id"`
	OccurrenceCount     int             `json:"occurrence_count"`
}

// RejectionRecord explains why a merchant was not promoted to a bill
type RejectionRecord struct {
	Merchant        string `json:"merchant"`
	Reason          string `json:"reason"`
	OccurrenceCount int    `json:"occurrence_count"`
}

// Result is the outcome of one full detection pass
type Result struct {
	Bills      []DetectedBill    `json:"bills"`
	Rejections []RejectionRecord `json:"rejections"`
}

// Rejection reasons shared by the engine and its tests
const (
	ReasonUnresolvableMerchant = "unresolvable merchant identity"
	ReasonMergedIntoPrimary    = "merged into primary pattern"
)
