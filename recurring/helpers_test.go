package recurring

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func occ(date time.Time, amount float64) Occurrence {
	return Occurrence{Date: date, Amount: amount}
}

// spaced builds n occurrences starting at start, every `every` days
func spaced(start time.Time, n, every int, amount float64) []Occurrence {
	out := make([]Occurrence, n)
	for i := range out {
		out[i] = occ(start.AddDate(0, 0, i*every), amount)
	}
	return out
}

var txSeq int

func tx(date time.Time, amount, description string) Transaction {
	txSeq++
	return Transaction{
		ID:          fmt.Sprintf("tx-%04d", txSeq),
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Description: description,
	}
}

// monthlyTx builds n transactions on the given day of consecutive months
func monthlyTx(first time.Time, n int, amount, description string) []Transaction {
	out := make([]Transaction, n)
	for i := range out {
		out[i] = tx(first.AddDate(0, i, 0), amount, description)
	}
	return out
}
