package query

import (
	"fmt"

	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/valyala/fastjson"
)

// HeadSource is the read surface QueryEngine scans: the live, non-
// tombstoned heads of a namespace. StorageEngine satisfies this directly.
type HeadSource interface {
	ListKeys(namespace string) []string
	Get(namespace, key string) (model.VersionedValue, error)
}

// Engine is C7: the in-memory query evaluator over a HeadSource.
type Engine struct {
	source HeadSource
}

// New builds a QueryEngine over source.
func New(source HeadSource) *Engine {
	return &Engine{source: source}
}

// Execute runs q against namespace ns and returns the matching page plus
// the total match count before pagination. Evaluation order: scan,
// filter, sort, offset/limit, project.
func (e *Engine) Execute(ns string, q Query) (Result, error) {
	keys := e.source.ListKeys(ns)

	var parser fastjson.Parser
	var matched []scannedItem
	for _, key := range keys {
		v, err := e.source.Get(ns, key)
		if err != nil {
			continue // tombstoned/raced away between list and get
		}

		parsed, err := parser.ParseBytes(v.Value)
		if err != nil {
			return Result{}, fmt.Errorf("%w: key %s/%s: %v", kerr.ErrQuery, ns, key, err)
		}
		if !matchesAll(parsed, q.Filters, effectiveCombinator(q.Combinator)) {
			continue
		}

		full, ok := toGoValue(parsed).(map[string]any)
		if !ok {
			full = map[string]any{"value": toGoValue(parsed)}
		}
		full["_key"] = key

		sortBy := make([]any, len(q.Sort))
		for i, sk := range q.Sort {
			sortBy[i], _ = extract(parsed, splitPath(sk.Field))
		}
		matched = append(matched, scannedItem{value: full, sortBy: sortBy})
	}

	total := len(matched)
	if len(q.Sort) > 0 {
		sortItems(matched, q.Sort)
	}

	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page := matched[start:end]

	items := make([]map[string]any, len(page))
	for i, it := range page {
		if len(q.Projection) == 0 {
			items[i] = it.value
		} else {
			items[i] = project(it.value, q.Projection)
		}
	}

	return Result{Items: items, TotalCount: total}, nil
}

func effectiveCombinator(c Combinator) Combinator {
	if c == "" {
		return And
	}
	return c
}
