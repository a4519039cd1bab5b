package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one posted bank transaction as stored by the account
// aggregation side. The bill service only reads this table.
//
// Key Fields:
//   - PostedOn: calendar day the transaction settled
//   - Amount: signed, positive values are expenses
//   - MerchantHint: optional merchant name already cleaned by the aggregator
type Transaction struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	UserID       string          `gorm:"size:64;not null;index:idx_transactions_user_posted,priority:1" json:"user_id"`
	PostedOn     time.Time       `gorm:"type:date;not null;index:idx_transactions_user_posted,priority:2" json:"posted_on"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Description  string          `gorm:"size:512;not null" json:"description"`
	MerchantHint *string         `gorm:"size:255" json:"merchant_hint,omitempty"`
	Category     *string         `gorm:"size:128" json:"category,omitempty"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}

// DetectedBill is the persisted form of a recurring bill.
//
// Key Fields:
//   - (UserID, MerchantName): unique, the replace-all key of a regeneration
//   - MerchantKey: normalized merchant shared by the bills of one split group
//   - AutoDetected: false for manually curated rows, which regeneration keeps
//   - SplitGroupID: set on bills split from one merchant
type DetectedBill struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              string          `gorm:"size:64;not null;uniqueIndex:idx_detected_bills_user_merchant,priority:1" json:"user_id"`
	MerchantKey         string          `gorm:"size:255;not null;index" json:"merchant_key"`
	MerchantName        string          `gorm:"size:255;not null;uniqueIndex:idx_detected_bills_user_merchant,priority:2" json:"merchant_name"`
	ExpectedAmount      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"expected_amount"`
	Frequency           string          `gorm:"size:16;not null" json:"frequency"`
	NextPredictedDate   time.Time       `gorm:"type:date;not null" json:"next_predicted_date"`
	LastTransactionDate time.Time       `gorm:"type:date;not null" json:"last_transaction_date"`
	ConfidenceScore     int             `gorm:"not null" json:"confidence_score"`
	IsActive            bool            `gorm:"not null" json:"is_active"`
	LifecycleState      string          `gorm:"size:16;not null;index" json:"lifecycle_state"`
	AutoDetected        bool            `gorm:"not null;index" json:"auto_detected"`
	SplitGroupID        *string         `gorm:"size:36;index" json:"split_group_id,omitempty"`
	OccurrenceCount     int             `gorm:"not null" json:"occurrence_count"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TableName specifies the table name for DetectedBill
func (DetectedBill) TableName() string {
	return "detected_bills"
}

// BillEvent is one lifecycle transition recorded by an incremental scan.
// PreviousAmount and Delta are only set for amount drift.
type BillEvent struct {
	ID             int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	BillID         int64               `gorm:"not null;index" json:"bill_id"`
	UserID         string              `gorm:"size:64;not null;index" json:"user_id"`
	MerchantName   string              `gorm:"size:255;not null" json:"merchant_name"`
	Kind           string              `gorm:"size:32;not null" json:"kind"`
	OccurredOn     time.Time           `gorm:"type:date;not null" json:"occurred_on"`
	Amount         decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"amount"`
	PreviousAmount decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"previous_amount"`
	Delta          decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"delta"`
	CreatedAt      time.Time           `json:"created_at"`
}

// TableName specifies the table name for BillEvent
func (BillEvent) TableName() string {
	return "bill_events"
}
