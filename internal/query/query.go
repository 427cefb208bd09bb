// Package query implements C7: the in-memory scan-filter-sort-project
// engine over head VersionedValues. There are no secondary
// indexes — every query is a full scan of a namespace's live heads, which
// is why dot-path field extraction goes through valyala/fastjson instead
// of decoding each head into a map[string]any up front: a query with a
// narrow filter only ever walks the handful of paths it actually touches.
package query

// Op is a filter comparison operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpGt         Op = "gt"
	OpGe         Op = "ge"
	OpLt         Op = "lt"
	OpLe         Op = "le"
	OpIn         Op = "in"
	OpContains   Op = "contains"
	OpStartsWith Op = "starts_with"
	OpExists     Op = "exists"
)

// Combinator joins a Query's filters together. And is the default.
type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

// Filter matches a single dot-path field against Value using Op. Exists
// ignores Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// SortKey is one entry in a multi-key sort spec.
type SortKey struct {
	Field string
	Desc  bool
}

// Query is the full request shape: filters, sort, projection, limit,
// offset.
type Query struct {
	Filters    []Filter
	Combinator Combinator // defaults to And when empty
	Sort       []SortKey
	Projection []string // whitelist of dotted paths; empty means "whole value"
	Offset     int
	Limit      int // 0 means unlimited
}

// Result is a page of matches plus the total count before pagination,
// returned separately from the paginated slice.
type Result struct {
	Items      []map[string]any
	TotalCount int
}
