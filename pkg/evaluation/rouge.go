// Package evaluation scores model output against human references.
package evaluation

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Score is precision, recall and F-measure for one ROUGE variant.
type Score struct {
	Precision float64
	Recall    float64
	FMeasure  float64
}

func newScore(overlap, predicted, reference int) Score {
	var s Score
	if predicted > 0 {
		s.Precision = float64(overlap) / float64(predicted)
	}
	if reference > 0 {
		s.Recall = float64(overlap) / float64(reference)
	}
	if s.Precision+s.Recall > 0 {
		s.FMeasure = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// RougeScores holds ROUGE-1, ROUGE-2 and ROUGE-L.
type RougeScores struct {
	Rouge1 Score
	Rouge2 Score
	RougeL Score
}

// Metrics flattens the scores under the names logged by the benchmark.
func (r RougeScores) Metrics() map[string]float64 {
	return map[string]float64{
		"rouge1_fmeasure":  r.Rouge1.FMeasure,
		"rouge2_fmeasure":  r.Rouge2.FMeasure,
		"rougeL_fmeasure":  r.RougeL.FMeasure,
		"rouge1_precision": r.Rouge1.Precision,
		"rouge1_recall":    r.Rouge1.Recall,
	}
}

// Tokenize lowercases, splits on anything that is not a letter or digit and
// stems tokens longer than three characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || unicode.IsLetter(r) && r > unicode.MaxASCII)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 3 {
			f = english.Stem(f, false)
		}
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func ngrams(tokens []string, n int) map[string]int {
	out := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], " ")]++
	}
	return out
}

func rougeN(pred, ref []string, n int) Score {
	p, r := ngrams(pred, n), ngrams(ref, n)
	var overlap, np, nr int
	for g, c := range r {
		nr += c
		overlap += min(c, p[g])
	}
	for _, c := range p {
		np += c
	}
	return newScore(overlap, np, nr)
}

func lcs(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Rouge compares a generated text against a reference.
func Rouge(generated, reference string) RougeScores {
	pred, ref := Tokenize(generated), Tokenize(reference)
	return RougeScores{
		Rouge1: rougeN(pred, ref, 1),
		Rouge2: rougeN(pred, ref, 2),
		RougeL: newScore(lcs(pred, ref), len(pred), len(ref)),
	}
}

// CategoryAccuracy is 1 when both labels match ignoring case and surrounding space.
func CategoryAccuracy(generated, reference string) float64 {
	if strings.EqualFold(strings.TrimSpace(generated), strings.TrimSpace(reference)) {
		return 1
	}
	return 0
}
