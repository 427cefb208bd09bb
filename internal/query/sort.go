package query

import "sort"

type scannedItem struct {
	value  map[string]any
	sortBy []any
}

// sortItems stable-sorts items by Query's sort keys in order.
func sortItems(items []scannedItem, keys []SortKey) {
	sort.SliceStable(items, func(i, j int) bool {
		for k := range keys {
			a, b := items[i].sortBy[k], items[j].sortBy[k]

			// null-last holds regardless of sort direction.
			if a == nil || b == nil {
				if a == nil && b == nil {
					continue
				}
				return b == nil
			}

			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if keys[k].Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
