package bills

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"billtrack/database"
	models "billtrack/database/models_pkg"
	"billtrack/logger"
	"billtrack/recurring"
)

// Repository handles database operations for detected bills and their events
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new bills repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceAutoDetected swaps the user's auto-detected bills for bills in one
// transaction. Manually curated rows are kept; a detected bill whose name
// collides with a manual row or an earlier bill of the batch is skipped.
// Returns the rows actually written, with their new IDs.
func (r *Repository) ReplaceAutoDetected(ctx context.Context, userID string, bills []recurring.DetectedBill) ([]recurring.DetectedBill, error) {
	var written []recurring.DetectedBill

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND auto_detected = ?", userID, true).
			Delete(&models.DetectedBill{}).Error; err != nil {
			return fmt.Errorf("delete auto-detected: %w", err)
		}

		var manual []string
		if err := tx.Model(&models.DetectedBill{}).
			Where("user_id = ? AND auto_detected = ?", userID, false).
			Pluck("merchant_name", &manual).Error; err != nil {
			return fmt.Errorf("load manual bills: %w", err)
		}
		taken := make(map[string]bool, len(manual))
		for _, name := range manual {
			taken[name] = true
		}

		log := logger.FromContext(ctx)
		rows := make([]models.DetectedBill, 0, len(bills))
		for _, b := range bills {
			if taken[b.MerchantName] {
				log.Info().
					Str("user_id", userID).
					Str("merchant", b.MerchantName).
					Msg("bill name already taken, skipping detected duplicate")
				continue
			}
			taken[b.MerchantName] = true
			b.UserID = userID
			rows = append(rows, toRow(b))
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert bills: %w", err)
		}

		written = make([]recurring.DetectedBill, 0, len(rows))
		for _, row := range rows {
			b, err := toDomain(row)
			if err != nil {
				return err
			}
			written = append(written, b)
		}
		return nil
	})
	if err != nil {
		return nil, database.WrapDBError("ReplaceAutoDetected", err)
	}
	return written, nil
}

// ListBills returns every bill of a user ordered by merchant name
func (r *Repository) ListBills(ctx context.Context, userID string) ([]recurring.DetectedBill, error) {
	var rows []models.DetectedBill
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("merchant_name ASC, expected_amount ASC").
		Find(&rows).Error; err != nil {
		return nil, database.WrapDBError("ListBills", err)
	}

	out := make([]recurring.DetectedBill, 0, len(rows))
	for _, row := range rows {
		b, err := toDomain(row)
		if err != nil {
			return nil, database.WrapDBError("ListBills", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// ListUserIDs returns the users that still have a bill worth scanning
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.DetectedBill{}).
		Where("lifecycle_state = ?", string(recurring.StateActive)).
		Distinct().
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, database.WrapDBError("ListUserIDs", err)
	}
	return ids, nil
}

// ApplyScan updates bills in place and records the scan's events atomically
func (r *Repository) ApplyScan(ctx context.Context, userID string, outcome recurring.ScanOutcome) error {
	if len(outcome.Updated) == 0 && len(outcome.Events) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range outcome.Updated {
			res := tx.Model(&models.DetectedBill{}).
				Where("id = ? AND user_id = ?", b.ID, userID).
				Updates(map[string]interface{}{
					"expected_amount":       b.ExpectedAmount.Round(2),
					"next_predicted_date":   recurring.CalendarDay(b.NextPredictedDate),
					"last_transaction_date": recurring.CalendarDay(b.LastTransactionDate),
					"is_active":             b.IsActive,
					"lifecycle_state":       string(b.LifecycleState),
				})
			if res.Error != nil {
				return fmt.Errorf("update bill %d: %w", b.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return database.NewNotFoundErrorWithID("bill", b.ID)
			}
		}

		if len(outcome.Events) == 0 {
			return nil
		}
		events := make([]models.BillEvent, len(outcome.Events))
		for i, ev := range outcome.Events {
			events[i] = eventRow(userID, ev)
		}
		if err := tx.Create(&events).Error; err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
		return nil
	})
	return database.WrapDBError("ApplyScan", err)
}

// ListEvents returns the user's most recent bill events, newest first
func (r *Repository) ListEvents(ctx context.Context, userID string, limit int) ([]models.BillEvent, error) {
	var events []models.BillEvent
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_on DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, database.WrapDBError("ListEvents", err)
	}
	return events, nil
}

func toRow(b recurring.DetectedBill) models.DetectedBill {
	row := models.DetectedBill{
		ID:                  b.ID,
		UserID:              b.UserID,
		MerchantKey:         b.MerchantKey,
		MerchantName:        b.MerchantName,
		ExpectedAmount:      b.ExpectedAmount.Round(2),
		Frequency:           string(b.Frequency),
		NextPredictedDate:   recurring.CalendarDay(b.NextPredictedDate),
		LastTransactionDate: recurring.CalendarDay(b.LastTransactionDate),
		ConfidenceScore:     b.ConfidenceScore,
		IsActive:            b.IsActive,
		LifecycleState:      string(b.LifecycleState),
		AutoDetected:        b.AutoDetected,
		OccurrenceCount:     b.OccurrenceCount,
	}
	if b.SplitGroupID.Valid {
		id := b.SplitGroupID.UUID.String()
		row.SplitGroupID = &id
	}
	return row
}

func toDomain(row models.DetectedBill) (recurring.DetectedBill, error) {
	freq, err := recurring.ParseFrequency(row.Frequency)
	if err != nil {
		return recurring.DetectedBill{}, database.NewValidationErrorWithValue("frequency", err.Error(), row.Frequency)
	}
	state, err := recurring.ParseLifecycleState(row.LifecycleState)
	if err != nil {
		return recurring.DetectedBill{}, database.NewValidationErrorWithValue("lifecycle_state", err.Error(), row.LifecycleState)
	}

	b := recurring.DetectedBill{
		ID:                  row.ID,
		UserID:              row.UserID,
		MerchantKey:         row.MerchantKey,
		MerchantName:        row.MerchantName,
		ExpectedAmount:      row.ExpectedAmount.Round(2),
		Frequency:           freq,
		NextPredictedDate:   recurring.CalendarDay(row.NextPredictedDate),
		LastTransactionDate: recurring.CalendarDay(row.LastTransactionDate),
		ConfidenceScore:     row.ConfidenceScore,
		IsActive:            row.IsActive,
		LifecycleState:      state,
		AutoDetected:        row.AutoDetected,
		OccurrenceCount:     row.OccurrenceCount,
	}
	if row.SplitGroupID != nil {
		id, err := uuid.Parse(*row.SplitGroupID)
		if err != nil {
			return recurring.DetectedBill{}, database.NewValidationErrorWithValue("split_group_id", err.Error(), *row.SplitGroupID)
		}
		b.SplitGroupID = uuid.NullUUID{UUID: id, Valid: true}
	}
	return b, nil
}

func eventRow(userID string, ev recurring.BillEvent) models.BillEvent {
	row := models.BillEvent{
		BillID:       ev.BillID,
		UserID:       userID,
		MerchantName: ev.MerchantName,
		Kind:         string(ev.Kind),
		OccurredOn:   recurring.CalendarDay(ev.OccurredOn),
	}
	if ev.Kind != recurring.EventDormant {
		row.Amount = decimal.NewNullDecimal(ev.Amount)
	}
	if ev.Kind == recurring.EventAmountDrifted {
		row.PreviousAmount = decimal.NewNullDecimal(ev.PreviousAmount)
		row.Delta = decimal.NewNullDecimal(ev.Delta)
	}
	return row
}
