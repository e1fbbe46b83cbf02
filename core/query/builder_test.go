package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-tabula/core/schema"
)

func TestNewQueryBuilder(t *testing.T) {
	qb := NewQueryBuilder()
	assert.NotNil(t, qb)
	assert.Nil(t, qb.query.Filters)
	assert.Empty(t, qb.query.Sort)
	assert.Nil(t, qb.query.Pagination)
	assert.Nil(t, qb.query.Projection)
	assert.Empty(t, qb.query.GroupBy)
	assert.Empty(t, qb.query.Aggregations)
}

func TestQueryBuilder_Build(t *testing.T) {
	qb := NewQueryBuilder()
	dsl := qb.Build()
	assert.Equal(t, QueryDSL{}, dsl)

	qb.Limit(10)
	dsl = qb.Build()
	assert.NotNil(t, dsl.Pagination)
	assert.Equal(t, 10, dsl.Pagination.Limit)

	// Mutating the built DSL must not leak back into the builder.
	dsl.Pagination.Limit = 99
	assert.Equal(t, 10, qb.query.Pagination.Limit)
}

func TestQueryBuilder_Clone(t *testing.T) {
	qb := NewQueryBuilder().Limit(10).OrderByAsc("name").GroupBy("x")
	clonedQb := qb.Clone()

	assert.NotNil(t, clonedQb)
	assert.Equal(t, qb.query, clonedQb.query)

	clonedQb.Limit(20).OrderByDesc("age").GroupBy("y")
	assert.Equal(t, 10, qb.query.Pagination.Limit)
	assert.Equal(t, 20, clonedQb.query.Pagination.Limit)
	assert.Len(t, qb.query.Sort, 1)
	assert.Equal(t, []string{"x"}, qb.query.GroupBy)
}

func TestQueryBuilder_Reset(t *testing.T) {
	qb := NewQueryBuilder().Limit(10).OrderByAsc("name").Avg("z", "avg_z")
	assert.NotNil(t, qb.query.Pagination)
	assert.NotEmpty(t, qb.query.Sort)

	qb.Reset()
	assert.Equal(t, QueryDSL{}, qb.query)
}

func TestQueryBuilder_Where(t *testing.T) {
	tests := []struct {
		name     string
		buildFn  func(*QueryBuilder) *QueryBuilder
		expected QueryFilter
	}{
		{
			name:     "Eq condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Eq("value1") },
			expected: CreateSimpleFilter("field1", ComparisonOperatorEq, "value1"),
		},
		{
			name:     "Neq condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Neq("value1") },
			expected: CreateSimpleFilter("field1", ComparisonOperatorNeq, "value1"),
		},
		{
			name:     "Lt condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Lt(10) },
			expected: CreateSimpleFilter("field1", ComparisonOperatorLt, 10),
		},
		{
			name:     "Lte condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Lte(10) },
			expected: CreateSimpleFilter("field1", ComparisonOperatorLte, 10),
		},
		{
			name:     "Gt condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Gt(10) },
			expected: CreateSimpleFilter("field1", ComparisonOperatorGt, 10),
		},
		{
			name:     "Gte condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Gte(10) },
			expected: CreateSimpleFilter("field1", ComparisonOperatorGte, 10),
		},
		{
			name:     "In condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").In("a", "b") },
			expected: CreateSimpleFilter("field1", ComparisonOperatorIn, []FilterValue{"a", "b"}),
		},
		{
			name:     "Nin condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Nin(1, 2) },
			expected: CreateSimpleFilter("field1", ComparisonOperatorNin, []FilterValue{1, 2}),
		},
		{
			name:     "Contains condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Contains("sub") },
			expected: CreateSimpleFilter("field1", ComparisonOperatorContains, "sub"),
		},
		{
			name:     "StartsWith condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").StartsWith("pre") },
			expected: CreateSimpleFilter("field1", ComparisonOperatorStartsWith, "pre"),
		},
		{
			name:     "EndsWith condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").EndsWith("suf") },
			expected: CreateSimpleFilter("field1", ComparisonOperatorEndsWith, "suf"),
		},
		{
			name:     "Exists condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Exists() },
			expected: CreateSimpleFilter("field1", ComparisonOperatorExists, true),
		},
		{
			name:     "Custom condition",
			buildFn:  func(qb *QueryBuilder) *QueryBuilder { return qb.Where("field1").Custom("near", 3) },
			expected: CreateSimpleFilter("field1", "near", 3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := NewQueryBuilder()
			resultQb := tt.buildFn(qb)
			assert.Same(t, qb, resultQb, "Should return the same QueryBuilder instance")
			require.NotNil(t, qb.query.Filters)
			assert.Equal(t, tt.expected, *qb.query.Filters)
		})
	}
}

func TestQueryBuilder_WhereGroup(t *testing.T) {
	tests := []struct {
		name     string
		buildFn  func(*QueryBuilder) *QueryBuilder
		expected QueryFilter
	}{
		{
			name: "AND group with two conditions",
			buildFn: func(qb *QueryBuilder) *QueryBuilder {
				return qb.WhereGroup(schema.LogicalAnd).
					Where("field1").Eq("value1").
					Where("field2").Gt(10).
					End()
			},
			expected: CreateFilterGroup(schema.LogicalAnd,
				CreateSimpleFilter("field1", ComparisonOperatorEq, "value1"),
				CreateSimpleFilter("field2", ComparisonOperatorGt, 10),
			),
		},
		{
			name: "OR group with two conditions",
			buildFn: func(qb *QueryBuilder) *QueryBuilder {
				return qb.WhereGroup(schema.LogicalOr).
					Where("fieldA").Neq("valueA").
					Where("fieldB").Lte(20).
					End()
			},
			expected: CreateFilterGroup(schema.LogicalOr,
				CreateSimpleFilter("fieldA", ComparisonOperatorNeq, "valueA"),
				CreateSimpleFilter("fieldB", ComparisonOperatorLte, 20),
			),
		},
		{
			name: "Nested AND group within OR group",
			buildFn: func(qb *QueryBuilder) *QueryBuilder {
				return qb.WhereGroup(schema.LogicalOr).
					Where("field1").Eq("value1").
					WhereGroup(schema.LogicalAnd).
					Where("nestedField1").Contains("text").
					Where("nestedField2").Exists().
					EndGroup().
					Where("field3").In(1, 2).
					End()
			},
			expected: CreateFilterGroup(schema.LogicalOr,
				CreateSimpleFilter("field1", ComparisonOperatorEq, "value1"),
				CreateFilterGroup(schema.LogicalAnd,
					CreateSimpleFilter("nestedField1", ComparisonOperatorContains, "text"),
					CreateSimpleFilter("nestedField2", ComparisonOperatorExists, true),
				),
				CreateSimpleFilter("field3", ComparisonOperatorIn, []FilterValue{1, 2}),
			),
		},
		{
			name: "End closes open nested groups",
			buildFn: func(qb *QueryBuilder) *QueryBuilder {
				return qb.WhereGroup(schema.LogicalAnd).
					Where("a").Eq(1).
					WhereGroup(schema.LogicalNot).
					Where("b").Eq(2).
					End()
			},
			expected: CreateFilterGroup(schema.LogicalAnd,
				CreateSimpleFilter("a", ComparisonOperatorEq, 1),
				CreateFilterGroup(schema.LogicalNot,
					CreateSimpleFilter("b", ComparisonOperatorEq, 2),
				),
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := NewQueryBuilder()
			resultQb := tt.buildFn(qb)
			assert.Same(t, qb, resultQb, "Should return the same QueryBuilder instance")
			require.NotNil(t, qb.query.Filters)
			assert.Equal(t, tt.expected, *qb.query.Filters)
		})
	}
}

func TestQueryBuilder_OrderBy(t *testing.T) {
	qb := NewQueryBuilder().OrderBy("x", SortDirectionAsc).OrderByDesc("y").OrderByAsc("z")
	assert.Equal(t, []SortConfiguration{Asc("x"), Desc("y"), Asc("z")}, qb.query.Sort)
}

func TestQueryBuilder_GroupBy(t *testing.T) {
	qb := NewQueryBuilder().GroupBy("x").GroupBy("y", "z")
	assert.Equal(t, []string{"x", "y", "z"}, qb.query.GroupBy)
}

func TestQueryBuilder_Filter(t *testing.T) {
	pred := func(row schema.Document) bool { return true }
	qb := NewQueryBuilder().Filter(pred).Filter(pred)
	assert.Len(t, qb.query.Predicates, 2)
	assert.Contains(t, qb.String(), "FILTERS: present")
}

func TestQueryBuilder_Pagination(t *testing.T) {
	qb := NewQueryBuilder().Offset(5)
	require.NotNil(t, qb.query.Pagination)
	assert.Equal(t, 0, qb.query.Pagination.Limit)
	assert.Equal(t, 5, *qb.query.Pagination.Offset)

	qb.Limit(10)
	assert.Equal(t, 10, qb.query.Pagination.Limit)
	assert.Equal(t, 5, *qb.query.Pagination.Offset)
}

func TestQueryBuilder_Select(t *testing.T) {
	t.Run("Include fields", func(t *testing.T) {
		qb := NewQueryBuilder().Select().Include("x", "y").Include("avg_z").End()
		require.NotNil(t, qb.query.Projection)
		assert.Equal(t, []ProjectionField{{Name: "x"}, {Name: "y"}, {Name: "avg_z"}}, qb.query.Projection.Include)
		assert.Empty(t, qb.query.Projection.Exclude)
	})

	t.Run("Exclude fields", func(t *testing.T) {
		qb := NewQueryBuilder().Select().Exclude("a").End()
		require.NotNil(t, qb.query.Projection)
		assert.Equal(t, []ProjectionField{{Name: "a"}}, qb.query.Projection.Exclude)
	})
}

func TestQueryBuilder_Aggregate(t *testing.T) {
	qb := NewQueryBuilder().
		Count("", "n").
		Sum("i", "").
		Avg("z", "avg_z").
		Min("z", "lo").
		Max("z", "hi").
		Aggregate(AggregationTypeAvg, "x", "")

	assert.Equal(t, []AggregationConfiguration{
		{Type: AggregationTypeCount, Alias: "n"},
		{Type: AggregationTypeSum, Field: "i"},
		{Type: AggregationTypeAvg, Field: "z", Alias: "avg_z"},
		{Type: AggregationTypeMin, Field: "z", Alias: "lo"},
		{Type: AggregationTypeMax, Field: "z", Alias: "hi"},
		{Type: AggregationTypeAvg, Field: "x"},
	}, qb.query.Aggregations)
}

func TestQueryBuilder_Validate(t *testing.T) {
	tests := []struct {
		name      string
		buildFn   func() *QueryBuilder
		isValid   bool
		errorMsgs []string
	}{
		{
			name:    "Valid empty query",
			buildFn: NewQueryBuilder,
			isValid: true,
		},
		{
			name: "Valid grouped query",
			buildFn: func() *QueryBuilder {
				return NewQueryBuilder().Where("a").Eq(1).GroupBy("x", "y").Avg("z", "avg_z").OrderByAsc("x").Limit(5)
			},
			isValid: true,
		},
		{
			name:      "Invalid pagination - limit zero",
			buildFn:   func() *QueryBuilder { return NewQueryBuilder().Limit(0) },
			errorMsgs: []string{"limit must be greater than 0"},
		},
		{
			name:      "Invalid pagination - negative offset",
			buildFn:   func() *QueryBuilder { return NewQueryBuilder().Offset(-1).Limit(1) },
			errorMsgs: []string{"offset cannot be negative"},
		},
		{
			name: "Invalid projection - both include and exclude",
			buildFn: func() *QueryBuilder {
				return NewQueryBuilder().Select().Include("field1").Exclude("field2").End()
			},
			errorMsgs: []string{"cannot have both include and exclude fields"},
		},
		{
			name:      "Invalid aggregation - missing field for non-count",
			buildFn:   func() *QueryBuilder { return NewQueryBuilder().Sum("", "total") },
			errorMsgs: []string{"field is required for non-count aggregations"},
		},
		{
			name:      "Invalid sort direction",
			buildFn:   func() *QueryBuilder { return NewQueryBuilder().OrderBy("x", "sideways") },
			errorMsgs: []string{"unknown direction 'sideways'"},
		},
		{
			name: "Multiple errors",
			buildFn: func() *QueryBuilder {
				return NewQueryBuilder().Limit(0).Select().Include("f1").Exclude("f2").End()
			},
			errorMsgs: []string{"limit must be greater than 0", "cannot have both include and exclude fields"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.buildFn().Validate()
			assert.Equal(t, tt.isValid, result.IsValid)
			if tt.isValid {
				assert.Empty(t, result.Errors)
				return
			}
			messages := make([]string, len(result.Errors))
			for i, err := range result.Errors {
				messages[i] = err.Message
			}
			assert.ElementsMatch(t, tt.errorMsgs, messages)
		})
	}
}

func TestQueryBuilder_String(t *testing.T) {
	tests := []struct {
		name     string
		buildFn  func() *QueryBuilder
		expected string
	}{
		{
			name:     "Empty query",
			buildFn:  NewQueryBuilder,
			expected: "EMPTY QUERY",
		},
		{
			name:     "Query with filter",
			buildFn:  func() *QueryBuilder { return NewQueryBuilder().Where("name").Eq("test") },
			expected: "FILTERS: present",
		},
		{
			name:     "Query with sort",
			buildFn:  func() *QueryBuilder { return NewQueryBuilder().OrderByAsc("name").OrderBy("age", "") },
			expected: "ORDER BY: name asc, age asc",
		},
		{
			name:     "Query with limit and offset",
			buildFn:  func() *QueryBuilder { return NewQueryBuilder().Limit(10).Offset(5) },
			expected: "LIMIT: 10 | OFFSET: 5",
		},
		{
			name:     "Query with exclude projection",
			buildFn:  func() *QueryBuilder { return NewQueryBuilder().Select().Exclude("a", "b").End() },
			expected: "EXCLUDE: a, b",
		},
		{
			name: "Tutorial grouped query",
			buildFn: func() *QueryBuilder {
				return NewQueryBuilder().
					Select().Include("x", "y", "avg_z").End().
					Where("a").Eq(1).
					GroupBy("x", "y").
					Avg("z", "avg_z").
					OrderByAsc("x").OrderByAsc("y")
			},
			expected: "SELECT: x, y, avg_z | FILTERS: present | GROUP BY: x, y | AGGREGATIONS: avg(z) AS avg_z | ORDER BY: x asc, y asc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.buildFn().String())
		})
	}
}

func TestCreateSimpleFilter(t *testing.T) {
	filter := CreateSimpleFilter("field", ComparisonOperatorEq, "value")
	assert.Nil(t, filter.Group)
	assert.Equal(t, &FilterCondition{Field: "field", Operator: ComparisonOperatorEq, Value: "value"}, filter.Condition)
}

func TestCreateFilterGroup(t *testing.T) {
	cond1 := CreateSimpleFilter("f1", ComparisonOperatorEq, 1)
	cond2 := CreateSimpleFilter("f2", ComparisonOperatorGt, 2)
	filter := CreateFilterGroup(schema.LogicalOr, cond1, cond2)
	assert.Nil(t, filter.Condition)
	require.NotNil(t, filter.Group)
	assert.Equal(t, schema.LogicalOr, filter.Group.Operator)
	assert.Equal(t, []QueryFilter{cond1, cond2}, filter.Group.Conditions)
}

func TestQueryBuilder_ExecutesAgainstEngine(t *testing.T) {
	ds := tutorialDataset(t)
	dsl := NewQueryBuilder().
		Select().Include("x", "y", "avg_z").End().
		Where("a").Eq(1).
		GroupBy("x", "y").
		Avg("z", "avg_z").
		OrderByAsc("x").OrderByAsc("y").
		Build()

	result, err := NewEngine(nil, nil).Execute(ds, &dsl)
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())
	assert.InDelta(t, 0.115, result.Row(0)["avg_z"], 1e-12)
}
