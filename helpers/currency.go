package helpers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney formats an amount with two decimals and comma thousand
// separators: -1234.5 with "$" becomes "-$1,234.50"
func FormatMoney(amount decimal.Decimal, symbol string) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)

	whole, frac := str, ""
	if i := strings.IndexByte(str, '.'); i >= 0 {
		whole, frac = str[:i], str[i:]
	}

	// Build the integer part with commas as thousand separators
	var sb strings.Builder
	length := len(whole)
	for i, digit := range whole {
		if i > 0 && (length-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(digit)
	}

	result := symbol + sb.String() + frac
	if negative {
		return "-" + result
	}
	return result
}
