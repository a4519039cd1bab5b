package recurring

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Bill names are stored in varchar(255) columns
const (
	MaxMerchantKeyLength = 200
	MaxBillNameLength    = 255
)

var (
	storeNumberSuffix = regexp.MustCompile(`\s*#\s*\d+$`)
	longDigitSuffix   = regexp.MustCompile(`\d{4,}$`)
)

// MerchantKey derives the identity key of a transaction, at most
// MaxMerchantKeyLength runes. The AI-assigned hint wins when it normalizes
// to something non-empty.
func MerchantKey(description, hint string) string {
	key := NormalizeMerchant(hint)
	if key == "" {
		key = NormalizeMerchant(description)
	}
	return truncateRunes(key, MaxMerchantKeyLength)
}

// NormalizeMerchant canonicalizes a raw merchant string: trailing store
// numbers and long digit runs are stripped, whitespace is collapsed and each
// word is title-cased. It is idempotent; an empty result means the string
// carries no usable identity.
func NormalizeMerchant(raw string) string {
	s := collapseSpaces(raw)
	for {
		stripped := storeNumberSuffix.ReplaceAllString(s, "")
		stripped = longDigitSuffix.ReplaceAllString(stripped, "")
		stripped = collapseSpaces(stripped)
		if stripped == s {
			break
		}
		s = stripped
	}
	if s == "" {
		return ""
	}
	// Casers are stateful, so one per call
	return cases.Title(language.Und).String(s)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
