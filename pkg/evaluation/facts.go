package evaluation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
)

// Fact is a normalized (key, value, unit) triple.
type Fact struct {
	Key   string
	Value string
	Unit  string
}

// SafeJSONParse strips code fences and decodes raw. It returns nil when raw
// is not JSON.
func SafeJSONParse(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(chain.StripFences(raw)), &v); err != nil {
		return nil
	}
	return v
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func norm(v any) string { return strings.ToLower(strings.TrimSpace(text(v))) }

func addFact(set map[Fact]struct{}, key string, item map[string]any) {
	f := Fact{Key: norm(key), Value: norm(item["value"]), Unit: norm(item["unit"])}
	if f.Key == "" || f.Value == "" || f.Value == "data not provided" {
		return
	}
	set[f] = struct{}{}
}

// NormalizeFacts accepts {"facts": [{key, value, unit}]}, {"extracted_points": [...]}
// or a keyed object {"name": {value, unit}} and returns the distinct facts.
func NormalizeFacts(data any) map[Fact]struct{} {
	set := make(map[Fact]struct{})
	obj, ok := data.(map[string]any)
	if !ok {
		return set
	}
	for _, listKey := range []string{"facts", "extracted_points"} {
		list, ok := obj[listKey].([]any)
		if !ok {
			continue
		}
		for _, it := range list {
			if m, ok := it.(map[string]any); ok {
				addFact(set, text(m["key"]), m)
			}
		}
		return set
	}
	for k, v := range obj {
		if m, ok := v.(map[string]any); ok {
			addFact(set, k, m)
		}
	}
	return set
}

// SortedFacts returns the set ordered by key, value and unit.
func SortedFacts(set map[Fact]struct{}) []Fact {
	out := make([]Fact, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		return a.Unit < b.Unit
	})
	return out
}

// ExtractionScores holds fact-level precision and recall.
type ExtractionScores struct {
	Precision   float64
	Recall      float64
	F1          float64
	IsValidJSON bool
}

// Metrics flattens the scores under the names logged by the benchmark.
func (e ExtractionScores) Metrics() map[string]float64 {
	valid := 0.0
	if e.IsValidJSON {
		valid = 1
	}
	return map[string]float64{
		"extraction_precision": e.Precision,
		"extraction_recall":    e.Recall,
		"extraction_f1":        e.F1,
		"is_valid_json":        valid,
	}
}

// ScoreExtraction compares generated JSON against reference facts.
// Unparseable output scores zero.
func ScoreExtraction(generated string, reference any) ExtractionScores {
	data := SafeJSONParse(generated)
	if data == nil {
		return ExtractionScores{}
	}
	ref, gen := NormalizeFacts(reference), NormalizeFacts(data)
	tp := 0
	for f := range gen {
		if _, ok := ref[f]; ok {
			tp++
		}
	}
	s := newScore(tp, len(gen), len(ref))
	return ExtractionScores{Precision: s.Precision, Recall: s.Recall, F1: s.FMeasure, IsValidJSON: true}
}
