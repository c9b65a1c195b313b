package snapshot

import (
	"math"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var decoder = jsoniter.Config{UseNumber: true}.Froze()

// number matches the json.Number values produced by a UseNumber decoder.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// ParseJSON decodes text best-effort. It reports false instead of an error when
// text is not a JSON document or is the document null. Integral numbers become
// int64, others float64.
func ParseJSON(text string) (any, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	var v any
	if err := decoder.UnmarshalFromString(text, &v); err != nil || v == nil {
		return nil, false
	}
	return normalizeNumbers(v), true
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) {
			return t.String()
		}
		return f
	default:
		return v
	}
}
