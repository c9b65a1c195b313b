package extract

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"generichttp/pkg/models"
	"generichttp/pkg/snapshot"
)

// Extractor computes the value of one port. It holds no mutable state.
type Extractor struct {
	rule               Rule
	valueType          string
	trueValues         []any
	ignoreResponseCode bool
}

// NewExtractor builds the extractor of a port from its definition.
func NewExtractor(port models.PortConfig, ignoreResponseCode bool) (*Extractor, error) {
	rule, err := NewRule(port.Read)
	if err != nil {
		return nil, err
	}
	valueType := port.Type
	if valueType == "" {
		valueType = models.PortTypeBoolean
	}
	return &Extractor{
		rule:               rule,
		valueType:          valueType,
		trueValues:         port.Read.TrueValues(),
		ignoreResponseCode: ignoreResponseCode,
	}, nil
}

// Rule returns the compiled read rule.
func (e *Extractor) Rule() Rule {
	return e.rule
}

// Extract returns the typed value held by s: a bool for boolean ports, an int64 or
// float64 for number ports, or nil when the snapshot carries no value.
// Errors are reserved for responses the rule cannot be applied to.
func (e *Extractor) Extract(s *snapshot.Snapshot) (any, error) {
	if s == nil || !s.HasStatus {
		return nil, nil
	}
	if !e.ignoreResponseCode && s.Status >= 400 {
		return nil, nil
	}

	raw, found, err := e.rule.Raw(s)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	if e.valueType == models.PortTypeBoolean {
		return ToBoolean(raw, e.trueValues), nil
	}
	if v, ok := ToNumber(raw); ok {
		return v, nil
	}
	return nil, nil
}

// ToBoolean reports whether raw is one of trueValues.
// Numbers compare by value whatever their Go type, and true/false equal 1/0.
func ToBoolean(raw any, trueValues []any) bool {
	for _, tv := range trueValues {
		if looseEqual(raw, tv) {
			return true
		}
	}
	return false
}

// ToNumber coerces raw into an int64 or float64.
// Strings are trimmed and parsed as an integer first, then as a float.
// A single underscore may separate two digits, as in "1_000".
// Unparsable strings, infinities and NaN report false.
func ToNumber(raw any) (any, bool) {
	switch v := raw.(type) {
	case bool:
		if v {
			return int64(1), true
		}
		return int64(0), true
	case string:
		s, ok := stripDigitSeparators(strings.TrimSpace(v))
		if !ok {
			return nil, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if strings.ContainsAny(s, "xX") {
			return nil, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, false
		}
		return f, true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}

	if i, ok := asInt64(raw); ok {
		return i, true
	}
	return nil, false
}

// stripDigitSeparators removes underscores that sit between two digits.
// Any other underscore makes the string unparsable.
func stripDigitSeparators(s string) (string, bool) {
	if !strings.Contains(s, "_") {
		return s, true
	}
	isDigit := func(i int) bool { return i >= 0 && i < len(s) && s[i] >= '0' && s[i] <= '9' }
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			sb.WriteByte(s[i])
			continue
		}
		if !isDigit(i-1) || !isDigit(i+1) {
			return "", false
		}
	}
	return sb.String(), true
}

func looseEqual(a, b any) bool {
	an, aNum := numeric(a)
	bn, bNum := numeric(b)
	if aNum && bNum {
		return an == bn
	}
	if aNum != bNum {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// numeric maps booleans and numbers onto a common float64 scale.
func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	}
	return 0, false
}
