package extraction

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
)

// LineFallbackConfidence is assigned to points recovered from stage-one lines.
const LineFallbackConfidence = 0.5

var (
	pageRe   = regexp.MustCompile(`(?i)(?:page|p\.)\s*(\d+)`)
	bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

// ParseLines reads "key | value | unit | page N" lines. Lines with fewer than
// three cells, template placeholders or no value are skipped.
func ParseLines(raw string) []DataPoint {
	var out []DataPoint
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Trim(bulletRe.ReplaceAllString(line, ""), " |\t")
		cells := strings.Split(line, "|")
		if len(cells) < 3 {
			continue
		}
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		key, value, unit := cells[0], cells[1], cells[2]
		if key == "" || value == "" || strings.HasPrefix(key, "[") || strings.Trim(value, "-: ") == "" {
			continue
		}
		p := DataPoint{
			Key:               key,
			Value:             value,
			Unit:              unit,
			ConfidenceScore:   LineFallbackConfidence,
			ChartType:         UnknownChart,
			IndicatorCategory: Other,
		}
		if len(cells) > 3 {
			p.Page = normalizePage(strings.Join(cells[3:], " "))
		}
		out = append(out, p)
	}
	return out
}

// hasSentinelOnly reports whether stage-one output declares there is nothing to extract.
func hasSentinelOnly(raw string) bool {
	return len(ParseLines(raw)) == 0 && strings.Contains(strings.ToUpper(raw), NoDataSentinel)
}

func normalizePage(s string) string {
	s = strings.TrimSpace(s)
	if m := pageRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
		return strconv.Itoa(int(f))
	}
	return s
}

type loosePoint struct {
	Key               chain.FlexString `json:"key"`
	Indicator         chain.FlexString `json:"indicator"`
	Value             chain.FlexString `json:"value"`
	Unit              chain.FlexString `json:"unit"`
	Page              chain.FlexString `json:"page"`
	ConfidenceScore   chain.FlexFloat  `json:"confidence_score"`
	ChartType         chain.FlexString `json:"chart_type"`
	IndicatorCategory chain.FlexString `json:"indicator_category"`
}

var validator = chain.LazyValidator[Result]()

// DecodeResult parses formatting-stage output. Output that matches the schema
// is used as is; anything else is decoded leniently, sanitized and checked again.
func DecodeResult(raw string) (Result, error) {
	s, err := chain.ExtractJSON(raw)
	if err != nil {
		return Result{}, err
	}
	v, err := validator()
	if err != nil {
		return Result{}, err
	}
	if v.Validate([]byte(s)) == nil {
		var r Result
		if err := json.Unmarshal([]byte(s), &r); err == nil {
			return Clean(r), nil
		}
	}
	points, err := decodeLoose(s)
	if err != nil {
		return Result{}, err
	}
	r := Clean(Result{ExtractedPoints: points})
	if err := v.ValidateValue(r); err != nil {
		return Result{}, fmt.Errorf("sanitized extraction: %w", err)
	}
	return r, nil
}

func decodeLoose(s string) ([]DataPoint, error) {
	var wrapped map[string]json.RawMessage
	var items []loosePoint
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, fmt.Errorf("decode extraction list: %w", err)
		}
	} else {
		if err := json.Unmarshal([]byte(s), &wrapped); err != nil {
			return nil, fmt.Errorf("decode extraction object: %w", err)
		}
		body, ok := wrapped["extracted_points"]
		if !ok {
			for _, alt := range []string{"points", "data", "facts"} {
				if body, ok = wrapped[alt]; ok {
					break
				}
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: no extracted_points field", chain.ErrNoJSON)
		}
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode extracted_points: %w", err)
		}
	}
	out := make([]DataPoint, 0, len(items))
	for _, it := range items {
		key := string(it.Key)
		if key == "" {
			key = string(it.Indicator)
		}
		out = append(out, DataPoint{
			Key:               key,
			Value:             string(it.Value),
			Unit:              string(it.Unit),
			Page:              string(it.Page),
			ConfidenceScore:   float64(it.ConfidenceScore),
			ChartType:         ChartType(it.ChartType),
			IndicatorCategory: IndicatorCategory(it.IndicatorCategory),
		})
	}
	return out, nil
}
