package query

import (
	"strings"

	"github.com/valyala/fastjson"
)

// splitPath turns "a.b.c" into ["a","b","c"] for fastjson.Value.Get's
// variadic key arguments: dot-notation field paths, no wildcards.
func splitPath(field string) []string {
	return strings.Split(field, ".")
}

// extract walks v along path and converts whatever it finds into a native
// Go value (nil/bool/float64/string/[]any/map[string]any), or returns
// ok=false if the path doesn't resolve — the caller treats a missing path
// as "doesn't match" for every operator except Exists.
func extract(v *fastjson.Value, path []string) (any, bool) {
	target := v.Get(path...)
	if target == nil {
		return nil, false
	}
	return toGoValue(target), true
}

func toGoValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toGoValue(item)
		}
		return out
	case fastjson.TypeObject:
		obj, _ := v.Object()
		out := make(map[string]any)
		obj.Visit(func(key []byte, val *fastjson.Value) {
			out[string(key)] = toGoValue(val)
		})
		return out
	default:
		return nil
	}
}
