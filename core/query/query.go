package query

import (
	"github.com/asaidimu/go-tabula/core/dataset"
)

// defaultEngine backs From. Engines hold no per-query state.
var defaultEngine = NewEngine(nil, nil)

// Query is an immutable, staged query over a dataset. Every stage returns a
// new Query and leaves its receiver untouched, so partially built queries can
// be shared and extended independently. Column names are validated when the
// query is executed.
type Query struct {
	engine *Engine
	source *dataset.Dataset
	dsl    QueryDSL
}

// From starts a query over ds using a default Engine.
func From(ds *dataset.Dataset) *Query {
	return defaultEngine.From(ds)
}

// From starts a query over ds evaluated by e.
func (e *Engine) From(ds *dataset.Dataset) *Query {
	return &Query{engine: e, source: ds}
}

func (q *Query) with(fn func(dsl *QueryDSL)) *Query {
	next := &Query{engine: q.engine, source: q.source, dsl: q.dsl.Clone()}
	fn(&next.dsl)
	return next
}

// Select restricts the output to columns, in the given order. Names may refer
// to aggregation aliases; aggregation outputs not named are appended.
// A later Select replaces an earlier one.
func (q *Query) Select(columns ...string) *Query {
	return q.with(func(dsl *QueryDSL) {
		fields := make([]ProjectionField, len(columns))
		for i, c := range columns {
			fields[i] = ProjectionField{Name: c}
		}
		dsl.Projection = &ProjectionConfiguration{Include: fields}
	})
}

// Filter keeps only rows for which predicate holds. Multiple filters are
// combined with AND.
func (q *Query) Filter(predicate Predicate) *Query {
	return q.with(func(dsl *QueryDSL) {
		dsl.Predicates = append(dsl.Predicates, predicate)
	})
}

// Where keeps only rows matching a declarative filter, ANDed with any filter
// already present.
func (q *Query) Where(filter QueryFilter) *Query {
	return q.with(func(dsl *QueryDSL) {
		if dsl.Filters == nil {
			dsl.Filters = &filter
			return
		}
		dsl.Filters = &QueryFilter{Group: &FilterGroup{
			Operator:   LogicalOperatorAnd,
			Conditions: []QueryFilter{*dsl.Filters, filter},
		}}
	})
}

// GroupBy partitions filtered rows by the values of columns.
func (q *Query) GroupBy(columns ...string) *Query {
	return q.with(func(dsl *QueryDSL) {
		dsl.GroupBy = append(dsl.GroupBy, columns...)
	})
}

// Aggregate adds aggregations computed once per group. Without GroupBy the
// whole filtered dataset is one group.
func (q *Query) Aggregate(specs ...AggregationConfiguration) *Query {
	return q.with(func(dsl *QueryDSL) {
		dsl.Aggregations = append(dsl.Aggregations, specs...)
	})
}

// OrderBy sorts the result ascending by columns, compared left to right.
func (q *Query) OrderBy(columns ...string) *Query {
	sorts := make([]SortConfiguration, len(columns))
	for i, c := range columns {
		sorts[i] = Asc(c)
	}
	return q.Sort(sorts...)
}

// OrderByDesc sorts the result descending by columns.
func (q *Query) OrderByDesc(columns ...string) *Query {
	sorts := make([]SortConfiguration, len(columns))
	for i, c := range columns {
		sorts[i] = Desc(c)
	}
	return q.Sort(sorts...)
}

// Sort appends sort keys with an explicit direction each.
func (q *Query) Sort(sorts ...SortConfiguration) *Query {
	return q.with(func(dsl *QueryDSL) {
		dsl.Sort = append(dsl.Sort, sorts...)
	})
}

// Limit caps the number of rows returned after ordering.
func (q *Query) Limit(limit int) *Query {
	return q.with(func(dsl *QueryDSL) {
		if dsl.Pagination == nil {
			dsl.Pagination = &PaginationOptions{}
		}
		dsl.Pagination.Limit = limit
	})
}

// Offset skips rows of the ordered result. It requires Limit.
func (q *Query) Offset(offset int) *Query {
	return q.with(func(dsl *QueryDSL) {
		if dsl.Pagination == nil {
			dsl.Pagination = &PaginationOptions{}
		}
		dsl.Pagination.Offset = &offset
	})
}

// DSL returns a copy of the accumulated query.
func (q *Query) DSL() QueryDSL {
	return q.dsl.Clone()
}

// Execute evaluates the query and returns a new dataset.
func (q *Query) Execute() (*dataset.Dataset, error) {
	dsl := q.dsl.Clone()
	return q.engine.Execute(q.source, &dsl)
}
