package query

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"
)

func matchesAll(v *fastjson.Value, filters []Filter, combinator Combinator) bool {
	if len(filters) == 0 {
		return true
	}
	if combinator == Or {
		for _, f := range filters {
			if matchesOne(v, f) {
				return true
			}
		}
		return false
	}
	for _, f := range filters {
		if !matchesOne(v, f) {
			return false
		}
	}
	return true
}

func matchesOne(v *fastjson.Value, f Filter) bool {
	path := splitPath(f.Field)
	actual, ok := extract(v, path)

	if f.Op == OpExists {
		return ok
	}
	if !ok {
		return false
	}

	switch f.Op {
	case OpEq:
		return compareValues(actual, f.Value) == 0
	case OpNe:
		return compareValues(actual, f.Value) != 0
	case OpGt:
		return compareValues(actual, f.Value) > 0
	case OpGe:
		return compareValues(actual, f.Value) >= 0
	case OpLt:
		return compareValues(actual, f.Value) < 0
	case OpLe:
		return compareValues(actual, f.Value) <= 0
	case OpIn:
		return valueIn(actual, f.Value)
	case OpContains:
		return valueContains(actual, f.Value)
	case OpStartsWith:
		as, aok := actual.(string)
		bs, bok := f.Value.(string)
		return aok && bok && strings.HasPrefix(as, bs)
	default:
		return false
	}
}

func valueIn(actual, set any) bool {
	list, ok := set.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if compareValues(actual, item) == 0 {
			return true
		}
	}
	return false
}

func valueContains(actual, needle any) bool {
	switch a := actual.(type) {
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(a, n)
	case []any:
		for _, item := range a {
			if compareValues(item, needle) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// compareValues imposes a total order over the native JSON value shapes:
// numbers compare numerically, strings lexicographically, booleans
// false<true; nil sorts after everything ("null-last").
// Mismatched types other than the nil case are compared by their rendered
// form, which is enough to be a stable (if not meaningful) tiebreak.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}

	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			if !av && bv {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
