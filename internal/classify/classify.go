// Package classify partitions OCR text lines into semantic categories with
// an ordered, first-match-wins rule cascade.
package classify

import (
	"strings"

	"github.com/zombor/ocr-analytics/internal/ocr"
)

// Category names a group of classified lines
type Category string

const (
	Dates          Category = "dates"
	Amounts        Category = "amounts"
	InvoiceNumbers Category = "invoiceNumbers"
	Names          Category = "names"
	Addresses      Category = "addresses"
	Other          Category = "other"
)

// Categories lists every category in precedence order
var Categories = []Category{Dates, Amounts, InvoiceNumbers, Names, Addresses, Other}

// Categorized maps each category to the original lines assigned to it, in
// input order. Every category key is present.
type Categorized map[Category][]string

// Total returns the number of classified lines
func (c Categorized) Total() int {
	total := 0
	for _, lines := range c {
		total += len(lines)
	}
	return total
}

func newCategorized() Categorized {
	c := make(Categorized, len(Categories))
	for _, category := range Categories {
		c[category] = []string{}
	}
	return c
}

// Result is the classification of one document
type Result struct {
	RawText    string      `json:"rawText"`
	Categories Categorized `json:"categories"`
}

// Classifier applies an ordered list of rules. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// New creates a Classifier over rules; with no rules it uses DefaultRules
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// ExtractLines flattens a document into its lines in reading order. A nil
// document or one without an analyze result yields no lines.
func ExtractLines(doc *ocr.Document) []string {
	lines := []string{}
	if doc == nil || doc.AnalyzeResult == nil {
		return lines
	}
	for _, page := range doc.AnalyzeResult.ReadResults {
		for _, line := range page.Lines {
			lines = append(lines, line.Text)
		}
	}
	return lines
}

// Classify returns the category of a single line. The first matching rule
// wins; unmatched lines are Other.
func (c *Classifier) Classify(line string) Category {
	for _, rule := range c.rules {
		if rule.Match(line) {
			return rule.Category
		}
	}
	return Other
}

// Categorize classifies every non-blank line. Blank and whitespace-only
// lines are dropped.
func (c *Classifier) Categorize(lines []string) Categorized {
	categorized := newCategorized()
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		category := c.Classify(line)
		categorized[category] = append(categorized[category], line)
	}
	return categorized
}

// CategorizeText splits text on newlines and categorizes the lines
func (c *Classifier) CategorizeText(text string) Categorized {
	if text == "" {
		return newCategorized()
	}
	return c.Categorize(strings.Split(text, "\n"))
}

// Analyze extracts and categorizes the lines of doc
func (c *Classifier) Analyze(doc *ocr.Document) Result {
	lines := ExtractLines(doc)
	return Result{
		RawText:    strings.Join(lines, "\n"),
		Categories: c.Categorize(lines),
	}
}
