package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"billtrack/database"
	"billtrack/recurring"
)

// DefaultPageSize is used when the feed is created with a non-positive size
const DefaultPageSize = 1000

// Cursor is the keyset position after the last row of a page
type Cursor struct {
	PostedOn time.Time
	ID       string
}

// Page is one slice of a user's expense history
type Page struct {
	Transactions []recurring.Transaction
	// Next is nil on the last page
	Next *Cursor
}

// Feed pages through a user's expense transactions ordered by (posted_on, id)
type Feed struct {
	db       *sql.DB
	pageSize int
}

// NewFeed creates a feed over an open connection
func NewFeed(db *database.DB, pageSize int) *Feed {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Feed{db: db.GetConn(), pageSize: pageSize}
}

// PageSize returns the number of rows fetched per page
func (f *Feed) PageSize() int {
	return f.pageSize
}

const pageQuery = `
	SELECT id, posted_on, amount, description, merchant_hint, category
	FROM transactions
	WHERE user_id = $1
	  AND amount > 0
	  AND posted_on > $2
	  AND (posted_on > $3 OR (posted_on = $3 AND id > $4))
	ORDER BY posted_on ASC, id ASC
	LIMIT $5`

// FetchPage returns the expenses of userID posted strictly after since,
// starting after cursor (nil for the first page)
func (f *Feed) FetchPage(ctx context.Context, userID string, since time.Time, cursor *Cursor) (Page, error) {
	after := Cursor{PostedOn: since}
	if cursor != nil {
		after = *cursor
	}

	rows, err := f.db.QueryContext(ctx, pageQuery,
		userID, recurring.CalendarDay(since), recurring.CalendarDay(after.PostedOn), after.ID, f.pageSize)
	if err != nil {
		return Page{}, database.WrapDBError("FetchPage", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var (
			tx       recurring.Transaction
			amount   decimal.Decimal
			hint     sql.NullString
			category sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.Date, &amount, &tx.Description, &hint, &category); err != nil {
			return Page{}, database.WrapDBError("FetchPage", fmt.Errorf("scan: %w", err))
		}
		tx.Date = recurring.CalendarDay(tx.Date)
		tx.Amount = amount
		tx.MerchantHint = hint.String
		tx.Category = category.String
		page.Transactions = append(page.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return Page{}, database.WrapDBError("FetchPage", err)
	}

	if len(page.Transactions) == f.pageSize {
		last := page.Transactions[len(page.Transactions)-1]
		page.Next = &Cursor{PostedOn: last.Date, ID: last.ID}
	}
	return page, nil
}

// History loads every expense of userID posted after since, page by page
func (f *Feed) History(ctx context.Context, userID string, since time.Time) ([]recurring.Transaction, error) {
	var (
		all    []recurring.Transaction
		cursor *Cursor
	)
	for {
		page, err := f.FetchPage(ctx, userID, since, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Transactions...)
		if page.Next == nil {
			return all, nil
		}
		cursor = page.Next
	}
}
