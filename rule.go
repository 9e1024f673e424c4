package alertbus

import (
	"math"
	"strconv"
	"strings"
)

// Rule is a notification threshold rule attached to an event.
//
// Exactly one form is expected per rule, checked in this order:
//
//	{always: true}              always notify
//	{never: true}               never notify
//	{field: F, gt: N}           notify iff data[F] > N
//	{field: F, gte: N}          notify iff data[F] >= N
//	{field: F, lt: N}           notify iff data[F] < N
//	{field: F, lte: N}          notify iff data[F] <= N
//	{field: F, abs_gte: N}      notify iff |data[F]| >= N
//	{field: F, abs_gt: N}       notify iff |data[F]| > N
//
// A rule that matches none of the forms defaults to "notify". Field values
// are coerced through coerceNumber; a field that is missing or cannot be
// coerced resolves field-based rules to "do not notify".
type Rule struct {
	Always bool     `json:"always,omitempty"`
	Never  bool     `json:"never,omitempty"`
	Field  string   `json:"field,omitempty"`
	GT     *float64 `json:"gt,omitempty"`
	GTE    *float64 `json:"gte,omitempty"`
	LT     *float64 `json:"lt,omitempty"`
	LTE    *float64 `json:"lte,omitempty"`
	AbsGT  *float64 `json:"abs_gt,omitempty"`
	AbsGTE *float64 `json:"abs_gte,omitempty"`
}

// ShouldNotify evaluates the rule against event data.
// It is pure and total: no I/O, never panics, always produces a boolean.
// A nil rule means "always notify".
func (r *Rule) ShouldNotify(data map[string]any) bool {
	if r == nil {
		return true
	}
	if r.Always {
		return true
	}
	if r.Never {
		return false
	}
	if r.Field != "" {
		raw, ok := data[r.Field]
		if !ok {
			return false
		}
		value, ok := coerceNumber(raw)
		if !ok {
			return false
		}
		switch {
		case r.GT != nil:
			return value > *r.GT
		case r.GTE != nil:
			return value >= *r.GTE
		case r.LT != nil:
			return value < *r.LT
		case r.LTE != nil:
			return value <= *r.LTE
		case r.AbsGTE != nil:
			return math.Abs(value) >= *r.AbsGTE
		case r.AbsGT != nil:
			return math.Abs(value) > *r.AbsGT
		}
	}
	return true
}

// numericScrub lists the formatting characters stripped before parsing.
// Covers currency ("$45,230.50") and percent-change ("+5.3%") strings.
const numericScrub = "$,%+"

// coerceNumber converts an event data value to a float64.
// Strings are scrubbed of formatting characters first. This is the single
// shared coercion routine used by all rule forms.
func coerceNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		s := x
		for _, c := range numericScrub {
			s = strings.ReplaceAll(s, string(c), "")
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
