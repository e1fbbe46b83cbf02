// Package query provides a fluent API for building tabular queries using a
// structured QueryDSL.
package query

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-tabula/core/schema"
)

// QueryBuilder provides a fluent and intuitive API for building QueryDSL structures.
// It allows for the step-by-step construction of a query, including filters,
// grouping, aggregation, sorting and pagination, culminating in a final QueryDSL object.
type QueryBuilder struct {
	query QueryDSL
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		query: QueryDSL{},
	}
}

// Build returns the constructed QueryDSL object.
func (qb *QueryBuilder) Build() QueryDSL {
	return qb.query.Clone()
}

// Clone creates a deep copy of the current query builder, allowing for the creation
// of new queries based on an existing one without modifying the original.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	return &QueryBuilder{query: qb.query.Clone()}
}

// Reset clears all configurations from the query builder, returning it to its initial state.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.query = QueryDSL{}
	return qb
}

// Where begins the construction of a filter condition for a specific field.
// The finished condition replaces any filter set earlier.
func (qb *QueryBuilder) Where(field string) *FilterConditionBuilder {
	return &FilterConditionBuilder{
		parent: qb,
		field:  field,
	}
}

// WhereGroup begins the construction of a group of filter conditions, combined
// with a logical operator (AND, OR or NOT).
func (qb *QueryBuilder) WhereGroup(operator schema.LogicalOperator) *FilterGroupBuilder {
	return &FilterGroupBuilder{
		root:       qb,
		operator:   operator,
		conditions: []QueryFilter{},
	}
}

// Filter adds a Go predicate, ANDed with the declarative filters.
func (qb *QueryBuilder) Filter(predicate Predicate) *QueryBuilder {
	qb.query.Predicates = append(qb.query.Predicates, predicate)
	return qb
}

// FilterConditionBuilder is used to build a single filter condition (e.g., field = value).
type FilterConditionBuilder struct {
	parent *QueryBuilder
	field  string
}

// Eq adds an equality condition to the query.
func (fcb *FilterConditionBuilder) Eq(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition to the query.
func (fcb *FilterConditionBuilder) Neq(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition to the query.
func (fcb *FilterConditionBuilder) Lt(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition to the query.
func (fcb *FilterConditionBuilder) Lte(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition to the query.
func (fcb *FilterConditionBuilder) Gt(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition to the query.
func (fcb *FilterConditionBuilder) Gte(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGte, value)
}

// In adds an "in" condition, checking if a field's value is within a set of values.
func (fcb *FilterConditionBuilder) In(values ...FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorIn, values)
}

// Nin adds a "not in" condition, checking if a field's value is not within a set of values.
func (fcb *FilterConditionBuilder) Nin(values ...FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNin, values)
}

// Contains adds a condition to check if a string field contains a substring.
func (fcb *FilterConditionBuilder) Contains(value string) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorContains, value)
}

// StartsWith adds a condition to check if a string field starts with a specific prefix.
func (fcb *FilterConditionBuilder) StartsWith(value string) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorStartsWith, value)
}

// EndsWith adds a condition to check if a string field ends with a specific suffix.
func (fcb *FilterConditionBuilder) EndsWith(value string) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorEndsWith, value)
}

// Exists adds a condition that the field holds a value.
func (fcb *FilterConditionBuilder) Exists() *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorExists, true)
}

// Custom allows for the use of a custom comparison operator registered with
// the engine.
func (fcb *FilterConditionBuilder) Custom(operator ComparisonOperator, value FilterValue) *QueryBuilder {
	return fcb.addCondition(operator, value)
}

func (fcb *FilterConditionBuilder) addCondition(operator ComparisonOperator, value FilterValue) *QueryBuilder {
	filter := CreateSimpleFilter(fcb.field, operator, value)
	fcb.parent.query.Filters = &filter
	return fcb.parent
}

// FilterGroupBuilder is used to build a group of filter conditions.
type FilterGroupBuilder struct {
	root       *QueryBuilder
	parent     *FilterGroupBuilder // nil for the outermost group
	operator   schema.LogicalOperator
	conditions []QueryFilter
}

// Where adds a new condition to the current filter group.
func (fgb *FilterGroupBuilder) Where(field string) *FilterConditionBuilderInGroup {
	return &FilterConditionBuilderInGroup{
		groupBuilder: fgb,
		field:        field,
	}
}

// WhereGroup opens a nested group inside the current group. Close it with
// EndGroup.
func (fgb *FilterGroupBuilder) WhereGroup(operator schema.LogicalOperator) *FilterGroupBuilder {
	return &FilterGroupBuilder{
		root:       fgb.root,
		parent:     fgb,
		operator:   operator,
		conditions: []QueryFilter{},
	}
}

// EndGroup closes a nested group, adds it to its parent and returns the parent.
func (fgb *FilterGroupBuilder) EndGroup() *FilterGroupBuilder {
	if fgb.parent == nil {
		return fgb
	}
	fgb.parent.conditions = append(fgb.parent.conditions, fgb.filter())
	return fgb.parent
}

// End finalizes the outermost group and returns to the main query builder.
// Any nested groups still open are closed first.
func (fgb *FilterGroupBuilder) End() *QueryBuilder {
	g := fgb
	for g.parent != nil {
		g = g.EndGroup()
	}
	filter := g.filter()
	g.root.query.Filters = &filter
	return g.root
}

func (fgb *FilterGroupBuilder) filter() QueryFilter {
	return CreateFilterGroup(fgb.operator, fgb.conditions...)
}

// FilterConditionBuilderInGroup is used to build a filter condition within a group.
type FilterConditionBuilderInGroup struct {
	groupBuilder *FilterGroupBuilder
	field        string
}

// Eq adds an equality condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Eq(value FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Neq(value FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Lt(value FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Lte(value FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Gt(value FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Gte(value FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorGte, value)
}

// In adds an "in" condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) In(values ...FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorIn, values)
}

// Nin adds a "not in" condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Nin(values ...FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorNin, values)
}

// Contains adds a substring condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Contains(value string) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorContains, value)
}

// Exists adds a presence condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Exists() *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorExists, true)
}

// Custom allows for custom comparison operators within a filter group.
func (fcbg *FilterConditionBuilderInGroup) Custom(operator ComparisonOperator, value FilterValue) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(operator, value)
}

func (fcbg *FilterConditionBuilderInGroup) addConditionToGroup(operator ComparisonOperator, value FilterValue) *FilterGroupBuilder {
	fcbg.groupBuilder.conditions = append(fcbg.groupBuilder.conditions, CreateSimpleFilter(fcbg.field, operator, value))
	return fcbg.groupBuilder
}

// OrderBy adds a sorting configuration to the query.
func (qb *QueryBuilder) OrderBy(field string, direction SortDirection) *QueryBuilder {
	qb.query.Sort = append(qb.query.Sort, SortConfiguration{
		Field:     field,
		Direction: direction,
	})
	return qb
}

// OrderByAsc adds an ascending sort order for a specific field.
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionAsc)
}

// OrderByDesc adds a descending sort order for a specific field.
func (qb *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionDesc)
}

// GroupBy adds columns to partition rows by before aggregation.
func (qb *QueryBuilder) GroupBy(fields ...string) *QueryBuilder {
	qb.query.GroupBy = append(qb.query.GroupBy, fields...)
	return qb
}

// Limit sets the maximum number of records to be returned by the query.
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	if qb.query.Pagination == nil {
		qb.query.Pagination = &PaginationOptions{}
	}
	qb.query.Pagination.Limit = limit
	return qb
}

// Offset sets the starting point for the result set.
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder {
	if qb.query.Pagination == nil {
		qb.query.Pagination = &PaginationOptions{}
	}
	qb.query.Pagination.Offset = &offset
	return qb
}

// ProjectionBuilder is used to build the projection part of a query, which defines
// which fields should be returned.
type ProjectionBuilder struct {
	parent *QueryBuilder
	config *ProjectionConfiguration
}

// Select begins the construction of the projection for the query.
func (qb *QueryBuilder) Select() *ProjectionBuilder {
	if qb.query.Projection == nil {
		qb.query.Projection = &ProjectionConfiguration{}
	}
	return &ProjectionBuilder{
		parent: qb,
		config: qb.query.Projection,
	}
}

// Include specifies which fields should be included in the result set.
func (pb *ProjectionBuilder) Include(fields ...string) *ProjectionBuilder {
	pb.config.Include = append(pb.config.Include, toProjectionFields(fields)...)
	return pb
}

// Exclude specifies which fields should be excluded from the result set.
func (pb *ProjectionBuilder) Exclude(fields ...string) *ProjectionBuilder {
	pb.config.Exclude = append(pb.config.Exclude, toProjectionFields(fields)...)
	return pb
}

// End finalizes the projection and returns to the main query builder.
func (pb *ProjectionBuilder) End() *QueryBuilder {
	return pb.parent
}

func toProjectionFields(fields []string) []ProjectionField {
	out := make([]ProjectionField, len(fields))
	for i, field := range fields {
		out[i] = ProjectionField{Name: field}
	}
	return out
}

// Aggregate adds an aggregation to the query.
func (qb *QueryBuilder) Aggregate(aggType AggregationType, field string, alias string) *QueryBuilder {
	qb.query.Aggregations = append(qb.query.Aggregations, AggregationConfiguration{
		Type:  aggType,
		Field: field,
		Alias: alias,
	})
	return qb
}

// Count adds a count aggregation to the query.
func (qb *QueryBuilder) Count(field string, alias string) *QueryBuilder {
	return qb.Aggregate(AggregationTypeCount, field, alias)
}

// Sum adds a sum aggregation to the query.
func (qb *QueryBuilder) Sum(field string, alias string) *QueryBuilder {
	return qb.Aggregate(AggregationTypeSum, field, alias)
}

// Avg adds an average aggregation to the query.
func (qb *QueryBuilder) Avg(field string, alias string) *QueryBuilder {
	return qb.Aggregate(AggregationTypeAvg, field, alias)
}

// Min adds a minimum aggregation to the query.
func (qb *QueryBuilder) Min(field string, alias string) *QueryBuilder {
	return qb.Aggregate(AggregationTypeMin, field, alias)
}

// Max adds a maximum aggregation to the query.
func (qb *QueryBuilder) Max(field string, alias string) *QueryBuilder {
	return qb.Aggregate(AggregationTypeMax, field, alias)
}

// QueryValidationResult contains the results of a query validation.
type QueryValidationResult struct {
	IsValid bool
	Errors  []QueryValidationError
}

// Validate performs a structural validation of the built query, checking for
// errors that do not depend on a dataset, such as invalid pagination options
// or conflicting projections. Column references are checked at execution.
func (qb *QueryBuilder) Validate() QueryValidationResult {
	var errors []QueryValidationError

	if qb.query.Pagination != nil {
		if qb.query.Pagination.Limit <= 0 {
			errors = append(errors, QueryValidationError{
				Field:   "pagination.limit",
				Message: "limit must be greater than 0",
			})
		}

		if qb.query.Pagination.Offset != nil && *qb.query.Pagination.Offset < 0 {
			errors = append(errors, QueryValidationError{
				Field:   "pagination.offset",
				Message: "offset cannot be negative",
			})
		}
	}

	if qb.query.Projection != nil {
		if len(qb.query.Projection.Include) > 0 && len(qb.query.Projection.Exclude) > 0 {
			errors = append(errors, QueryValidationError{
				Field:   "projection",
				Message: "cannot have both include and exclude fields",
			})
		}
	}

	for i, agg := range qb.query.Aggregations {
		if agg.Field == "" && agg.Type != AggregationTypeCount {
			errors = append(errors, QueryValidationError{
				Field:   fmt.Sprintf("aggregations[%d].field", i),
				Message: "field is required for non-count aggregations",
			})
		}
	}

	for i, s := range qb.query.Sort {
		if s.Direction != "" && s.Direction != SortDirectionAsc && s.Direction != SortDirectionDesc {
			errors = append(errors, QueryValidationError{
				Field:   fmt.Sprintf("sort[%d].direction", i),
				Message: fmt.Sprintf("unknown direction '%s'", s.Direction),
			})
		}
	}

	return QueryValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

// String returns a human-readable representation of the built query.
func (qb *QueryBuilder) String() string {
	var parts []string

	if qb.query.Projection != nil {
		if len(qb.query.Projection.Include) > 0 {
			parts = append(parts, fmt.Sprintf("SELECT: %s", joinFields(qb.query.Projection.Include)))
		}
		if len(qb.query.Projection.Exclude) > 0 {
			parts = append(parts, fmt.Sprintf("EXCLUDE: %s", joinFields(qb.query.Projection.Exclude)))
		}
	}

	if qb.query.Filters != nil || len(qb.query.Predicates) > 0 {
		parts = append(parts, "FILTERS: present")
	}

	if len(qb.query.GroupBy) > 0 {
		parts = append(parts, fmt.Sprintf("GROUP BY: %s", strings.Join(qb.query.GroupBy, ", ")))
	}

	if len(qb.query.Aggregations) > 0 {
		aggs := make([]string, len(qb.query.Aggregations))
		for i, agg := range qb.query.Aggregations {
			aggs[i] = fmt.Sprintf("%s(%s) AS %s", agg.Type, agg.Field, agg.OutputName())
		}
		parts = append(parts, fmt.Sprintf("AGGREGATIONS: %s", strings.Join(aggs, ", ")))
	}

	if len(qb.query.Sort) > 0 {
		sortFields := make([]string, len(qb.query.Sort))
		for i, sort := range qb.query.Sort {
			direction := sort.Direction
			if direction == "" {
				direction = SortDirectionAsc
			}
			sortFields[i] = fmt.Sprintf("%s %s", sort.Field, direction)
		}
		parts = append(parts, fmt.Sprintf("ORDER BY: %s", strings.Join(sortFields, ", ")))
	}

	if qb.query.Pagination != nil {
		parts = append(parts, fmt.Sprintf("LIMIT: %d", qb.query.Pagination.Limit))
		if qb.query.Pagination.Offset != nil {
			parts = append(parts, fmt.Sprintf("OFFSET: %d", *qb.query.Pagination.Offset))
		}
	}

	if len(parts) == 0 {
		return "EMPTY QUERY"
	}

	return strings.Join(parts, " | ")
}

func joinFields(fields []ProjectionField) string {
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name
	}
	return strings.Join(names, ", ")
}

// CreateSimpleFilter is a helper function to create a simple filter condition.
func CreateSimpleFilter(field string, operator ComparisonOperator, value FilterValue) QueryFilter {
	return QueryFilter{
		Condition: &FilterCondition{
			Field:    field,
			Operator: operator,
			Value:    value,
		},
	}
}

// CreateFilterGroup is a helper function to create a filter group.
func CreateFilterGroup(operator schema.LogicalOperator, conditions ...QueryFilter) QueryFilter {
	return QueryFilter{
		Group: &FilterGroup{
			Operator:   operator,
			Conditions: conditions,
		},
	}
}
