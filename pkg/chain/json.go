package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoJSON is returned when no JSON object or array can be located.
var ErrNoJSON = errors.New("no JSON found in model output")

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// StripFences returns the body of the first fenced block, or s trimmed.
func StripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// ExtractJSON locates the outermost JSON object or array in model output,
// tolerating code fences and prose around it. When prose holds bracketed
// fragments of its own, the longest valid candidate wins.
func ExtractJSON(raw string) (string, error) {
	s := StripFences(raw)
	if s == "" {
		return "", ErrNoJSON
	}
	if json.Valid([]byte(s)) && (s[0] == '{' || s[0] == '[') {
		return s, nil
	}
	best := ""
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		end := matchClose(s, i)
		if end < 0 {
			continue
		}
		cand := s[i : end+1]
		if !json.Valid([]byte(cand)) {
			continue
		}
		if len(cand) > len(best) {
			best = cand
		}
		// anything starting inside cand is nested and shorter
		i = end
	}
	if best != "" {
		return best, nil
	}
	// fall back to first '{' .. last '}'
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		cand := s[i : j+1]
		if json.Valid([]byte(cand)) {
			return cand, nil
		}
	}
	return "", ErrNoJSON
}

// matchClose returns the index of the bracket closing s[start], honouring strings.
func matchClose(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseJSON extracts and decodes model output into T.
func ParseJSON[T any](raw string) (T, error) {
	var out T
	s, err := ExtractJSON(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return out, fmt.Errorf("decode model JSON: %w", err)
	}
	return out, nil
}

// FlexString decodes JSON strings, numbers and booleans as text. Null is empty.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
	default:
		*f = FlexString(s)
	}
	return nil
}

// ErrNotNumber is returned by ParseNumber for values that carry no number.
var ErrNotNumber = errors.New("not a number")

// ParseNumber reads a JSON number or numeric string; "85%" is 0.85.
func ParseNumber(b []byte) (float64, error) {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %.40q", ErrNotNumber, s)
	}
	if strings.HasSuffix(s, "%") {
		v /= 100
	}
	return v, nil
}

// FlexFloat decodes numbers or numeric strings. Anything else is zero.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	v, err := ParseNumber(b)
	if err != nil {
		v = 0
	}
	*f = FlexFloat(v)
	return nil
}
