package rbac

import (
	"reflect"
	"strings"
)

// Operator identifies a condition comparison.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpContains Operator = "contains"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
)

// Condition represents a fine-grained check evaluated against a
// runtime context after the base permission check has already passed.
// Conditions can only narrow access, never widen it.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// EvaluateConditions evaluates the conjunction of conditions against a
// key-value context. Every condition must pass; an unknown operator or
// an incomparable value fails closed.
func EvaluateConditions(conditions []Condition, context map[string]any) bool {
	for _, c := range conditions {
		if !evaluateCondition(c, context) {
			return false
		}
	}
	return true
}

func evaluateCondition(c Condition, context map[string]any) bool {
	actual, ok := context[c.Field]
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEq:
		return looseEqual(actual, c.Value)
	case OpNe:
		return !looseEqual(actual, c.Value)
	case OpIn:
		return valueIn(actual, c.Value)
	case OpNotIn:
		return !valueIn(actual, c.Value)
	case OpContains:
		return containsValue(actual, c.Value)
	case OpGt:
		a, aok := toFloat(actual)
		b, bok := toFloat(c.Value)
		return aok && bok && a > b
	case OpLt:
		a, aok := toFloat(actual)
		b, bok := toFloat(c.Value)
		return aok && bok && a < b
	default:
		// unsupported operators fail closed
		return false
	}
}

// looseEqual compares two values, coercing numerics so that an int
// from application code equals a float64 decoded from JSON.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

// valueIn reports whether needle equals an element of haystack, which
// must be a slice or array.
func valueIn(needle, haystack any) bool {
	v := reflect.ValueOf(haystack)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if looseEqual(needle, v.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// containsValue handles both string containment and slice membership.
func containsValue(actual, value any) bool {
	switch a := actual.(type) {
	case string:
		s, ok := value.(string)
		return ok && strings.Contains(a, s)
	default:
		v := reflect.ValueOf(actual)
		if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return false
		}
		for i := 0; i < v.Len(); i++ {
			if looseEqual(v.Index(i).Interface(), value) {
				return true
			}
		}
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
