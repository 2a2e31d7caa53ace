package classify

import (
	"regexp"
	"strings"
)

// Rule assigns Category to lines for which Match reports true
type Rule struct {
	Category Category
	Match    func(line string) bool
}

// ContainsAny matches a line when any of the patterns occurs in it
func ContainsAny(patterns ...string) func(string) bool {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, pattern := range patterns {
		compiled[i] = regexp.MustCompile(pattern)
	}
	return func(line string) bool {
		for _, re := range compiled {
			if re.MatchString(line) {
				return true
			}
		}
		return false
	}
}

// WholeLine matches when the trimmed line matches pattern in full
func WholeLine(pattern string) func(string) bool {
	re := regexp.MustCompile(`^(?:` + pattern + `)$`)
	return func(line string) bool {
		return re.MatchString(strings.TrimSpace(line))
	}
}

// OCR output often separates tokens with non-breaking or other Unicode
// spaces, so separators accept \p{Zs} as well as ASCII whitespace.
var defaultRules = []Rule{
	{
		Category: Dates,
		Match: ContainsAny(
			`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`,
			`(?i)\b(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2},? \d{4}\b`,
			`\b\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}\b`,
		),
	},
	{
		Category: Amounts,
		Match: ContainsAny(
			`\$[\s\p{Zs}]*\d+([.,]\d+)*`,
			`\b\d+([.,]\d+)*[\s\p{Zs}]*(USD|EUR|GBP)\b`,
		),
	},
	{
		Category: InvoiceNumbers,
		Match: ContainsAny(
			`(?i)\b(invoice|inv|order|receipt)[\s\p{Zs}\-:#]*\d+\b`,
			`\b[A-Z]{2,}-\d+\b`,
		),
	},
	{
		// Strict on purpose: two capitalized words and nothing else
		Category: Names,
		Match:    WholeLine(`[A-Z][a-z]+ [A-Z][a-z]+`),
	},
	{
		Category: Addresses,
		Match: ContainsAny(
			`(?i)\d+[\s\p{Zs}]+[A-Za-z\s\p{Zs},]+\b(Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b`,
			`\b[A-Z]{2}[\s\p{Zs}]+\d{5}(-\d{4})?\b`,
		),
	},
}

// DefaultRules returns the built-in cascade in precedence order:
// dates, amounts, invoice numbers, names, addresses
func DefaultRules() []Rule {
	return append([]Rule(nil), defaultRules...)
}
