// Package categorize assigns a report to one of eight environmental categories.
package categorize

import (
	"context"
	"regexp"
	"strings"
)

// Category is one of the fixed environmental labels.
type Category string

const (
	Climate          Category = "CLIMATE AND EMISSIONS"
	Biodiversity     Category = "BIODIVERSITY AND ECOSYSTEMS"
	Pollution        Category = "POLLUTION AND ENVIRONMENTAL QUALITY"
	NaturalResources Category = "NATURAL RESOURCES"
	Energy           Category = "ENERGY AND TRANSITION"
	Policies         Category = "POLICIES AND REGULATION"
	SocioEconomic    Category = "SOCIO-ECONOMIC IMPACT"
	Risks            Category = "RISKS AND DISASTERS"

	// Undetermined is reported when no classifier produced a label.
	Undetermined Category = "Undetermined category"
)

// All lists the categories in prompt order.
var All = []Category{Climate, Biodiversity, Pollution, NaturalResources, Energy, Policies, SocioEconomic, Risks}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

func canon(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToUpper(s), " "))
}

// Parse maps free text onto a category: exact match first, then the first
// category name contained in the text.
func Parse(s string) (Category, bool) {
	c := canon(s)
	if c == "" {
		return "", false
	}
	for _, cat := range All {
		if canon(string(cat)) == c {
			return cat, true
		}
	}
	best, at := Category(""), -1
	for _, cat := range All {
		if i := strings.Index(c, canon(string(cat))); i >= 0 && (at < 0 || i < at) {
			best, at = cat, i
		}
	}
	return best, at >= 0
}

// Classifier labels a summary.
type Classifier interface {
	Classify(ctx context.Context, summary string) (Category, error)
}

// KeywordClassifier is the simulation classifier used when no model is
// available. Water terms win over climate terms.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, summary string) (Category, error) {
	lower := strings.ToLower(summary)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("water", "river", "sea", "ocean"):
		return Pollution, nil
	case has("co2", "climate", "emission", "warming"):
		return Climate, nil
	default:
		return Biodiversity, nil
	}
}
