package core

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultIncomeKeywords mark a category as income when contained in its text.
var DefaultIncomeKeywords = []string{"receita", "income"}

// Classifier decides whether a category cell denotes income.
type Classifier interface {
	IsIncome(category string) bool
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(category string) bool

func (f ClassifierFunc) IsIncome(category string) bool { return f(category) }

// KeywordClassifier matches categories containing any keyword, ignoring case.
// It is safe for concurrent use.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier folds the keywords once; blank keywords are ignored and
// an empty list falls back to DefaultIncomeKeywords.
func NewKeywordClassifier(keywords ...string) *KeywordClassifier {
	caser := cases.Fold()
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		folded = append(folded, caser.String(k))
	}
	if len(folded) == 0 {
		for _, k := range DefaultIncomeKeywords {
			folded = append(folded, caser.String(k))
		}
	}
	return &KeywordClassifier{keywords: folded}
}

func (c *KeywordClassifier) IsIncome(category string) bool {
	// Casers keep state, so each call gets its own.
	text := cases.Fold().String(category)
	for _, k := range c.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Keywords returns the folded keywords in use.
func (c *KeywordClassifier) Keywords() []string {
	return append([]string(nil), c.keywords...)
}
