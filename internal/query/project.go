package query

import "strings"

// project builds a new map containing only the whitelisted dotted paths
// from full, nesting objects as needed; absent fields are simply omitted.
// An empty paths list means "no projection" and is handled by the caller
// before reaching here.
func project(full map[string]any, paths []string) map[string]any {
	out := make(map[string]any)
	for _, p := range paths {
		v, ok := lookupPath(full, strings.Split(p, "."))
		if !ok {
			continue
		}
		setPath(out, strings.Split(p, "."), v)
	}
	return out
}

func lookupPath(m map[string]any, path []string) (any, bool) {
	cur := any(m)
	for _, seg := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m map[string]any, path []string, value any) {
	cur := m
	for i, seg := range path {
		if i == len(path)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
}
