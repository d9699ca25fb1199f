package extraction

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/store"
)

// MinKeyLength is the shortest key that still carries context ("GDP Growth").
const MinKeyLength = 10

const notProvided = "data not provided"

var noiseKeywords = []string{"table of contents", "list of figures", "abbreviations"}

// DocumentPartSeparator joins retrieved chunks in the extraction context.
const DocumentPartSeparator = "\n\n--- Document Part ---\n\n"

// PrepareContext joins retrieved chunk contents in the order given.
func PrepareContext(records []store.Record) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.Content
	}
	return strings.Join(parts, DocumentPartSeparator)
}

// Rejection records why a point was dropped.
type Rejection struct {
	Key    string
	Reason string
}

func isNumeric(v string) bool {
	v = strings.NewReplacer(".", "", ",", "").Replace(v)
	if v == "" {
		return false
	}
	for _, r := range v {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// rejectReason applies the quality rules in order. An empty result keeps the point.
func rejectReason(p DataPoint, minConfidence float64) string {
	key := strings.ToLower(p.Key)
	value := strings.TrimSpace(p.Value)
	switch {
	case utf8.RuneCountInString(key) < MinKeyLength:
		return "too short"
	case value == "" || strings.EqualFold(value, notProvided):
		return "no value"
	}
	for _, kw := range noiseKeywords {
		if strings.Contains(key, kw) {
			return "structural noise"
		}
	}
	if isNumeric(value) && strings.TrimSpace(p.Unit) == "" {
		return "numeric without unit"
	}
	if minConfidence > 0 && p.ConfidenceScore < minConfidence {
		return "low confidence"
	}
	return ""
}

// FilterPoints drops low-quality points. minConfidence <= 0 disables the
// confidence floor.
func FilterPoints(ctx context.Context, points []DataPoint, minConfidence float64) ([]DataPoint, []Rejection) {
	log := clog.FromContext(ctx)
	kept := make([]DataPoint, 0, len(points))
	var rejected []Rejection
	for _, p := range points {
		if reason := rejectReason(p, minConfidence); reason != "" {
			log.Warnf("rejected data point (%s): %q = %q", reason, p.Key, p.Value)
			rejected = append(rejected, Rejection{Key: p.Key, Reason: reason})
			continue
		}
		kept = append(kept, p)
	}
	log.Infof("validated %d data points, rejected %d", len(kept), len(rejected))
	return kept, rejected
}

var (
	prefixSymbols = []string{"US$", "$", "€", "£", "¥"}
	suffixSymbols = []string{"%", "$", "€", "£"}
)

// splitSymbol moves a currency or percent sign from the value into an empty unit.
func splitSymbol(value, unit string) (string, string) {
	if unit != "" {
		return value, unit
	}
	for _, s := range prefixSymbols {
		if rest, ok := strings.CutPrefix(value, s); ok && isNumeric(strings.TrimSpace(rest)) {
			return strings.TrimSpace(rest), s
		}
	}
	for _, s := range suffixSymbols {
		if rest, ok := strings.CutSuffix(value, s); ok && isNumeric(strings.TrimSpace(rest)) {
			return strings.TrimSpace(rest), s
		}
	}
	return value, unit
}

// Clean trims fields, renders pages as plain numbers where possible, clamps
// confidence and maps chart and category labels onto their enums.
func Clean(r Result) Result {
	out := Result{ExtractedPoints: make([]DataPoint, 0, len(r.ExtractedPoints))}
	for _, p := range r.ExtractedPoints {
		p.Key = strings.Join(strings.Fields(p.Key), " ")
		p.Value, p.Unit = splitSymbol(strings.TrimSpace(p.Value), strings.TrimSpace(p.Unit))
		p.Page = normalizePage(p.Page)
		p.ConfidenceScore = min(max(p.ConfidenceScore, 0), 1)
		p.ChartType = ParseChartType(string(p.ChartType))
		p.IndicatorCategory = ParseIndicatorCategory(string(p.IndicatorCategory))
		out.ExtractedPoints = append(out.ExtractedPoints, p)
	}
	return out
}
