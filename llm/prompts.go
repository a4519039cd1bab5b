package llm

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billtrack/helpers"
	"billtrack/recurring"
)

// FormatSplitPrompt asks whether the amount clusters of one merchant are
// separate obligations. The expected answer shape is splitResponse.
func FormatSplitPrompt(merchant string, clusters []recurring.Cluster) string {
	var sb strings.Builder
	sb.Grow(512 + len(clusters)*120)

	sb.WriteString(fmt.Sprintf("Merchant: %q\n", merchant))
	sb.WriteString("The charges from this merchant form these independent recurring patterns:\n\n")

	for i, c := range clusters {
		sb.WriteString(fmt.Sprintf("%d. %s %s, seen %d times, last on %s (confidence %d)\n",
			i+1,
			helpers.FormatMoney(decimal.NewFromFloat(c.Amount), "$"),
			c.Frequency,
			c.Occurrences,
			c.LastDate.Format("2006-01-02"),
			c.Confidence,
		))
	}

	sb.WriteString("\nDecide whether these are separate bills (for example a phone plan and a device installment) ")
	sb.WriteString("or one bill whose amount changed over time.\n")
	sb.WriteString("Answer with JSON only:\n")
	sb.WriteString(`{"should_split": true|false, "reasoning": "<one sentence>", "clusters": [`)
	sb.WriteString(`{"description": "<short label, max 4 words>", "amount": <number>, "frequency": "<frequency>"}]}`)
	sb.WriteString(fmt.Sprintf("\nList exactly %d clusters, in the order given above.", len(clusters)))

	return sb.String()
}
