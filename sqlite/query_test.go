package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
)

func pointsSchema() *schema.SchemaDefinition {
	return &schema.SchemaDefinition{
		Name:    "points",
		Version: "1.0.0",
		Columns: []schema.ColumnDefinition{
			{Name: "x", Type: schema.ColumnTypeInteger},
			{Name: "y", Type: schema.ColumnTypeInteger},
			{Name: "z", Type: schema.ColumnTypeNumber},
			{Name: "a", Type: schema.ColumnTypeInteger},
			{Name: "label", Type: schema.ColumnTypeString},
		},
	}
}

func TestGenerateSelectSQL(t *testing.T) {
	tests := []struct {
		name     string
		dsl      query.QueryDSL
		expected string
		params   []any
	}{
		{
			name:     "all columns",
			dsl:      query.QueryDSL{},
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points";`,
		},
		{
			name:     "projection and limit",
			dsl:      query.NewQueryBuilder().Select().Include("x", "z").End().Limit(5).Build(),
			expected: `SELECT "x", "z" FROM "points" LIMIT 5;`,
		},
		{
			name:     "exclude",
			dsl:      query.NewQueryBuilder().Select().Exclude("label", "a").End().Build(),
			expected: `SELECT "x", "y", "z" FROM "points";`,
		},
		{
			name:     "filter",
			dsl:      query.NewQueryBuilder().Where("a").Eq(1).Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" WHERE "a" = ?;`,
			params:   []any{int64(1)},
		},
		{
			name:     "grouped average",
			dsl:      query.NewQueryBuilder().GroupBy("a").Avg("z", "avg_z").Build(),
			expected: `SELECT "a", AVG("z") AS "avg_z" FROM "points" GROUP BY "a";`,
		},
		{
			name:     "global count",
			dsl:      query.NewQueryBuilder().Count("", "n").Build(),
			expected: `SELECT COUNT(*) AS "n" FROM "points" HAVING COUNT(*) > 0;`,
		},
		{
			name:     "order by alias",
			dsl:      query.NewQueryBuilder().GroupBy("a").Avg("z", "avg_z").OrderByDesc("avg_z").Build(),
			expected: `SELECT "a", AVG("z") AS "avg_z" FROM "points" GROUP BY "a" ORDER BY "avg_z" DESC;`,
		},
		{
			name:     "multi-key order with offset",
			dsl:      query.NewQueryBuilder().OrderBy("x", "").OrderByDesc("y").Limit(10).Offset(20).Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" ORDER BY "x" ASC, "y" DESC LIMIT 10 OFFSET 20;`,
		},
		{
			name: "nested groups",
			dsl: query.NewQueryBuilder().
				WhereGroup(query.LogicalOperatorOr).
				Where("x").Lt(0).
				WhereGroup(query.LogicalOperatorAnd).
				Where("y").Gte(2).
				Where("label").In("p", "q").
				End().
				Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" WHERE ("x" < ? OR ("y" >= ? AND "label" IN (?,?)));`,
			params:   []any{int64(0), int64(2), "p", "q"},
		},
		{
			name: "not group",
			dsl: query.NewQueryBuilder().
				WhereGroup(query.LogicalOperatorNot).
				Where("a").Eq(0).
				End().
				Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" WHERE NOT ("a" = ?);`,
			params:   []any{int64(0)},
		},
		{
			name:     "empty in list",
			dsl:      query.NewQueryBuilder().Where("a").In().Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" WHERE 1=0;`,
		},
		{
			name:     "contains is case sensitive",
			dsl:      query.NewQueryBuilder().Where("label").Contains("ab").Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" WHERE instr("label", ?) > 0;`,
			params:   []any{"ab"},
		},
		{
			name:     "ends with",
			dsl:      query.NewQueryBuilder().Where("label").EndsWith("z").Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" WHERE substr("label", length("label") - length(?) + 1) = ?;`,
			params:   []any{"z", "z"},
		},
		{
			name:     "number compared with integer literal",
			dsl:      query.NewQueryBuilder().Where("z").Gt(0).Build(),
			expected: `SELECT "x", "y", "z", "a", "label" FROM "points" WHERE "z" > ?;`,
			params:   []any{int64(0)},
		},
	}

	q, err := NewSqliteQuery(pointsSchema())
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := q.GenerateSelectSQL(&tt.dsl)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestGenerateSelectSQL_Errors(t *testing.T) {
	tests := []struct {
		name   string
		dsl    query.QueryDSL
		target error
		msg    string
	}{
		{
			name:   "unknown filter column",
			dsl:    query.NewQueryBuilder().Where("w").Eq(1).Build(),
			target: query.ErrUnknownColumn,
		},
		{
			name:   "unknown group column",
			dsl:    query.NewQueryBuilder().GroupBy("w").Build(),
			target: query.ErrUnknownColumn,
		},
		{
			name:   "unknown projected column",
			dsl:    query.NewQueryBuilder().Select().Include("w").End().Build(),
			target: query.ErrUnknownColumn,
		},
		{
			name:   "order by column not in output",
			dsl:    query.NewQueryBuilder().Select().Include("x").End().OrderByAsc("y").Build(),
			target: query.ErrUnknownColumn,
		},
		{
			name:   "average of string",
			dsl:    query.NewQueryBuilder().Avg("label", "").Build(),
			target: query.ErrTypeMismatch,
		},
		{
			name:   "string compared with number",
			dsl:    query.NewQueryBuilder().Where("label").Gt(1).Build(),
			target: query.ErrTypeMismatch,
		},
		{
			name:   "contains on number",
			dsl:    query.NewQueryBuilder().Where("z").Contains("1").Build(),
			target: query.ErrTypeMismatch,
		},
		{
			name: "custom operator",
			dsl:  query.NewQueryBuilder().Where("x").Custom("near", 1).Build(),
			msg:  "unsupported comparison operator",
		},
		{
			name: "go predicate",
			dsl:  query.NewQueryBuilder().Filter(func(schema.Document) bool { return true }).Build(),
			msg:  "Go predicates",
		},
		{
			name: "empty filter group",
			dsl:  query.QueryDSL{Filters: &query.QueryFilter{Group: &query.FilterGroup{Operator: query.LogicalOperatorOr}}},
			msg:  "group has no conditions",
		},
		{
			name: "non-positive limit",
			dsl:  query.QueryDSL{Pagination: &query.PaginationOptions{Limit: 0}},
			msg:  "limit must be greater than 0",
		},
	}

	q, err := NewSqliteQuery(pointsSchema())
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := q.GenerateSelectSQL(&tt.dsl)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestGenerateInsertSQL(t *testing.T) {
	q, err := NewSqliteQuery(pointsSchema())
	require.NoError(t, err)

	sql, params, err := q.GenerateInsertSQL([]schema.Document{
		{"label": "p", "a": 1, "z": 0.5, "y": -1, "x": -1},
		{"x": 2, "y": 3, "z": 1, "a": 0, "label": "q"},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "points" ("x", "y", "z", "a", "label") VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?);`, sql)
	assert.Equal(t, []any{int64(-1), int64(-1), 0.5, int64(1), "p", int64(2), int64(3), 1.0, int64(0), "q"}, params)

	t.Run("invalid record", func(t *testing.T) {
		_, _, err := q.GenerateInsertSQL([]schema.Document{{"x": 1}})
		assert.ErrorContains(t, err, "record 0")
	})

	t.Run("no records", func(t *testing.T) {
		_, _, err := q.GenerateInsertSQL(nil)
		assert.Error(t, err)
	})
}

func TestGenerateDeleteSQL(t *testing.T) {
	q, err := NewSqliteQuery(pointsSchema())
	require.NoError(t, err)

	filter := query.NewQueryBuilder().Where("a").Eq(1).Build().Filters
	sql, params, err := q.GenerateDeleteSQL(filter, false)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "points" WHERE "a" = ?;`, sql)
	assert.Equal(t, []any{int64(1)}, params)

	_, _, err = q.GenerateDeleteSQL(nil, false)
	assert.Error(t, err)

	sql, _, err = q.GenerateDeleteSQL(nil, true)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "points";`, sql)
}

func TestGeneratorFactory_TablePrefix(t *testing.T) {
	gen, err := NewSqliteQueryGeneratorFactory("t_").CreateGenerator(pointsSchema())
	require.NoError(t, err)

	sql, _, err := gen.GenerateDeleteSQL(nil, true)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "t_points";`, sql)

	_, err = NewSqliteQuery(nil)
	assert.Error(t, err)
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdentifier(`a"b`))
}
