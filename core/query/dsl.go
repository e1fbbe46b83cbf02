// Package query defines the Domain-Specific Language (DSL) for describing
// tabular queries, a fluent builder for it, and the Engine that evaluates a
// query against an in-memory dataset.
package query

import (
	"fmt"
	"slices"

	"github.com/asaidimu/go-tabula/core/schema"
)

// Logical operators for combining filter conditions.
const (
	LogicalOperatorAnd schema.LogicalOperator = "and"
	LogicalOperatorOr  schema.LogicalOperator = "or"
	LogicalOperatorNot schema.LogicalOperator = "not"
)

// ComparisonOperator defines the set of operators that can be used in a filter condition.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq          ComparisonOperator = "eq"
	ComparisonOperatorNeq         ComparisonOperator = "neq"
	ComparisonOperatorLt          ComparisonOperator = "lt"
	ComparisonOperatorLte         ComparisonOperator = "lte"
	ComparisonOperatorGt          ComparisonOperator = "gt"
	ComparisonOperatorGte         ComparisonOperator = "gte"
	ComparisonOperatorIn          ComparisonOperator = "in"
	ComparisonOperatorNin         ComparisonOperator = "nin"
	ComparisonOperatorContains    ComparisonOperator = "contains"
	ComparisonOperatorNotContains ComparisonOperator = "ncontains"
	ComparisonOperatorStartsWith  ComparisonOperator = "startswith"
	ComparisonOperatorEndsWith    ComparisonOperator = "endswith"
	ComparisonOperatorExists      ComparisonOperator = "exists"
	ComparisonOperatorNotExists   ComparisonOperator = "nexists"
)

// FilterValue represents the value used in a filter condition.
type FilterValue = any

// Predicate is a pure test applied to a row during filtering. It must not
// modify the row.
type Predicate func(row schema.Document) bool

// FilterCondition defines a single condition for filtering the results of a query.
type FilterCondition struct {
	Field    string             `json:"field"`
	Operator ComparisonOperator `json:"operator"`
	Value    FilterValue        `json:"value,omitempty"`
}

// FilterGroup combines multiple filter conditions using a logical operator.
type FilterGroup struct {
	Operator   schema.LogicalOperator `json:"operator"`
	Conditions []QueryFilter          `json:"conditions"`
}

// QueryFilter is a union type that can represent either a single filter condition
// or a group of conditions.
type QueryFilter struct {
	Condition *FilterCondition `json:"condition,omitempty"`
	Group     *FilterGroup     `json:"group,omitempty"`
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for a specific field.
type SortConfiguration struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction,omitempty"` // empty means ascending
}

// Asc returns an ascending sort configuration for field.
func Asc(field string) SortConfiguration {
	return SortConfiguration{Field: field, Direction: SortDirectionAsc}
}

// Desc returns a descending sort configuration for field.
func Desc(field string) SortConfiguration {
	return SortConfiguration{Field: field, Direction: SortDirectionDesc}
}

// PaginationOptions bounds the ordered result.
type PaginationOptions struct {
	Limit  int  `json:"limit"`
	Offset *int `json:"offset,omitempty"`
}

// ProjectionField names a column kept in the query result.
type ProjectionField struct {
	Name string `json:"name"`
}

// ProjectionConfiguration defines which columns are returned by a query.
// Include lists columns in output order and may name aggregation aliases;
// Exclude removes columns from the default output.
type ProjectionConfiguration struct {
	Include []ProjectionField `json:"include,omitempty"`
	Exclude []ProjectionField `json:"exclude,omitempty"`
}

// AggregationType specifies the type of aggregation to be performed.
type AggregationType string

// Supported aggregation types.
const (
	AggregationTypeCount AggregationType = "count"
	AggregationTypeSum   AggregationType = "sum"
	AggregationTypeAvg   AggregationType = "avg"
	AggregationTypeMin   AggregationType = "min"
	AggregationTypeMax   AggregationType = "max"
)

// AggregationConfiguration computes one value per group from a source column
// and stores it under Alias. When Alias is empty it defaults to
// "<type>_<field>", or "count" for a row count.
type AggregationConfiguration struct {
	Type  AggregationType `json:"type"`
	Field string          `json:"field,omitempty"`
	Alias string          `json:"alias,omitempty"`
}

// OutputName returns the column name the aggregation writes to.
func (a AggregationConfiguration) OutputName() string {
	if a.Alias != "" {
		return a.Alias
	}
	if a.Field == "" || a.Field == "*" {
		return string(a.Type)
	}
	return fmt.Sprintf("%s_%s", a.Type, a.Field)
}

// Avg returns a mean aggregation of field written to alias.
func Avg(field, alias string) AggregationConfiguration {
	return AggregationConfiguration{Type: AggregationTypeAvg, Field: field, Alias: alias}
}

// QueryDSL is the top-level structure that represents a complete query,
// analogous to SELECT … WHERE … GROUP BY … ORDER BY … LIMIT.
type QueryDSL struct {
	Filters      *QueryFilter               `json:"filters,omitempty"`
	Predicates   []Predicate                `json:"-"` // Go predicates ANDed with Filters
	Projection   *ProjectionConfiguration   `json:"projection,omitempty"`
	GroupBy      []string                   `json:"groupBy,omitempty"`
	Aggregations []AggregationConfiguration `json:"aggregations,omitempty"`
	Sort         []SortConfiguration        `json:"sort,omitempty"`
	Pagination   *PaginationOptions         `json:"pagination,omitempty"`
}

// IsGrouped reports whether the query partitions rows before projection.
func (q *QueryDSL) IsGrouped() bool {
	return len(q.GroupBy) > 0 || len(q.Aggregations) > 0
}

// Clone returns a deep copy of the query. Filter values that are slices are
// shared, as they are never mutated.
func (q QueryDSL) Clone() QueryDSL {
	out := QueryDSL{
		Filters:      cloneFilter(q.Filters),
		Predicates:   slices.Clone(q.Predicates),
		GroupBy:      slices.Clone(q.GroupBy),
		Aggregations: slices.Clone(q.Aggregations),
		Sort:         slices.Clone(q.Sort),
	}
	if q.Projection != nil {
		out.Projection = &ProjectionConfiguration{
			Include: slices.Clone(q.Projection.Include),
			Exclude: slices.Clone(q.Projection.Exclude),
		}
	}
	if q.Pagination != nil {
		p := *q.Pagination
		if p.Offset != nil {
			offset := *p.Offset
			p.Offset = &offset
		}
		out.Pagination = &p
	}
	return out
}

func cloneFilter(f *QueryFilter) *QueryFilter {
	if f == nil {
		return nil
	}
	out := &QueryFilter{}
	if f.Condition != nil {
		c := *f.Condition
		out.Condition = &c
	}
	if f.Group != nil {
		g := &FilterGroup{Operator: f.Group.Operator, Conditions: make([]QueryFilter, len(f.Group.Conditions))}
		for i := range f.Group.Conditions {
			g.Conditions[i] = *cloneFilter(&f.Group.Conditions[i])
		}
		out.Group = g
	}
	return out
}

// ParseQuery decodes a QueryDSL from JSON or YAML. Go predicates cannot be
// expressed in either format; use Filters instead.
func ParseQuery(data []byte) (*QueryDSL, error) {
	var q QueryDSL
	if err := schema.DecodeYAML(data, &q); err != nil {
		return nil, fmt.Errorf("failed to decode query: %w", err)
	}
	return &q, nil
}

// standardComparisonOperators is a set of all the standard, built-in comparison operators.
var standardComparisonOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEq:          {},
	ComparisonOperatorNeq:         {},
	ComparisonOperatorLt:          {},
	ComparisonOperatorLte:         {},
	ComparisonOperatorGt:          {},
	ComparisonOperatorGte:         {},
	ComparisonOperatorIn:          {},
	ComparisonOperatorNin:         {},
	ComparisonOperatorContains:    {},
	ComparisonOperatorNotContains: {},
	ComparisonOperatorStartsWith:  {},
	ComparisonOperatorEndsWith:    {},
	ComparisonOperatorExists:      {},
	ComparisonOperatorNotExists:   {},
}

// IsStandard checks if a comparison operator is one of the standard, built-in operators.
func (c ComparisonOperator) IsStandard() bool {
	_, ok := standardComparisonOperators[c]
	return ok
}
