package sqlite

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
)

// SqliteQueryGeneratorFactory implements the QueryGeneratorFactory for SQLite.
type SqliteQueryGeneratorFactory struct {
	tablePrefix string
}

// NewSqliteQueryGeneratorFactory creates a new instance of SqliteQueryGeneratorFactory.
// Generated statements address tables as tablePrefix + schema name.
func NewSqliteQueryGeneratorFactory(tablePrefix string) *SqliteQueryGeneratorFactory {
	return &SqliteQueryGeneratorFactory{tablePrefix: tablePrefix}
}

// CreateGenerator creates a new SqliteQuery (which is a QueryGenerator) for the given schema.
func (f *SqliteQueryGeneratorFactory) CreateGenerator(schema *schema.SchemaDefinition) (query.QueryGenerator, error) {
	q, err := NewSqliteQuery(schema)
	if err != nil {
		return nil, err
	}
	q.table = f.tablePrefix + schema.Name
	return q, nil
}

// SqliteQuery is a schema-aware query generator for SQLite. Column
// references and operand types are checked against the schema with the same
// rules the in-memory engine applies, so a query rejected by one is rejected
// by the other.
type SqliteQuery struct {
	schema *schema.SchemaDefinition
	table  string
}

// NewSqliteQuery creates a new schema-aware query generator for SQLite.
func NewSqliteQuery(sc *schema.SchemaDefinition) (*SqliteQuery, error) {
	if sc == nil {
		return nil, fmt.Errorf("SchemaDefinition cannot be nil")
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("schema must define a table name")
	}
	return &SqliteQuery{schema: sc, table: sc.Name}, nil
}

// quoteIdentifier properly quotes an identifier for SQLite.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// column resolves a column reference for the given stage.
func (s *SqliteQuery) column(name, stage string) (*schema.ColumnDefinition, error) {
	col := s.schema.FindColumn(name)
	if col == nil {
		return nil, &query.UnknownColumnError{Column: name, Stage: stage, Available: s.schema.ColumnNames()}
	}
	return col, nil
}

// prepareValueForQuery normalizes a filter operand and checks it against the
// column type: numbers for numeric columns, strings for string columns.
func prepareValueForQuery(col *schema.ColumnDefinition, op query.ComparisonOperator, value any) (any, error) {
	normalized, actual, ok := schema.NormalizeValue(value)
	if ok && (col.Type.IsNumeric() && actual.IsNumeric() || col.Type == actual) {
		return normalized, nil
	}
	return nil, &query.TypeMismatchError{Column: col.Name, Operation: "filter " + string(op), Type: string(col.Type)}
}

// selectColumn is one entry of the SELECT list.
type selectColumn struct {
	name string
	expr string
}

// GenerateSelectSQL creates a complete SQL SELECT query string and its corresponding
// parameters from a `query.QueryDSL` object.
func (s *SqliteQuery) GenerateSelectSQL(dsl *query.QueryDSL) (string, []any, error) {
	if dsl == nil {
		return "", nil, fmt.Errorf("QueryDSL cannot be nil")
	}
	if len(dsl.Predicates) > 0 {
		return "", nil, fmt.Errorf("Go predicates cannot be translated to SQL; use declarative filters")
	}

	var whereClauses, groupByClauses, orderByClauses []string
	var queryParams []any
	limit, offset := -1, 0

	selectColumns, err := s.buildSelectList(dsl)
	if err != nil {
		return "", nil, err
	}

	if dsl.Filters != nil {
		whereSQL, err := s.buildWhereClause(dsl.Filters, &queryParams)
		if err != nil {
			return "", nil, fmt.Errorf("error building WHERE clause: %w", err)
		}
		if whereSQL != "" {
			whereClauses = append(whereClauses, whereSQL)
		}
	}

	for _, field := range dsl.GroupBy {
		if _, err := s.column(field, "groupBy"); err != nil {
			return "", nil, err
		}
		groupByClauses = append(groupByClauses, quoteIdentifier(field))
	}

	outputNames := make([]string, len(selectColumns))
	for i, c := range selectColumns {
		outputNames[i] = c.name
	}
	for i, sortCfg := range dsl.Sort {
		if !containsName(outputNames, sortCfg.Field) {
			return "", nil, &query.UnknownColumnError{Column: sortCfg.Field, Stage: "orderBy", Available: outputNames}
		}
		direction := sortCfg.Direction
		if direction == "" {
			direction = query.SortDirectionAsc
		}
		if direction != query.SortDirectionAsc && direction != query.SortDirectionDesc {
			return "", nil, query.QueryValidationError{Field: fmt.Sprintf("sort[%d].direction", i), Message: fmt.Sprintf("unknown direction '%s'", sortCfg.Direction)}
		}
		orderByClauses = append(orderByClauses, fmt.Sprintf("%s %s", quoteIdentifier(sortCfg.Field), strings.ToUpper(string(direction))))
	}

	if dsl.Pagination != nil {
		if dsl.Pagination.Limit <= 0 {
			return "", nil, query.QueryValidationError{Field: "pagination.limit", Message: "limit must be greater than 0"}
		}
		limit = dsl.Pagination.Limit
		if dsl.Pagination.Offset != nil {
			if *dsl.Pagination.Offset < 0 {
				return "", nil, query.QueryValidationError{Field: "pagination.offset", Message: "offset cannot be negative"}
			}
			offset = *dsl.Pagination.Offset
		}
	}

	exprs := make([]string, len(selectColumns))
	for i, c := range selectColumns {
		exprs[i] = c.expr
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), quoteIdentifier(s.table)))
	if len(whereClauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	if len(groupByClauses) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(groupByClauses, ", "))
	} else if len(dsl.Aggregations) > 0 {
		// An ungrouped aggregate over no rows yields no groups, not a row of NULLs.
		sb.WriteString(" HAVING COUNT(*) > 0")
	}
	if len(orderByClauses) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(orderByClauses, ", "))
	}
	if limit > -1 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	if offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", offset))
	}

	return sb.String() + ";", queryParams, nil
}

// buildSelectList mirrors the engine's output column rules: an include list
// fixes the order and may name aggregation aliases, grouped queries default
// to the group-by columns followed by the aggregations, and plain queries
// default to every schema column.
func (s *SqliteQuery) buildSelectList(dsl *query.QueryDSL) ([]selectColumn, error) {
	aggregations := make(map[string]string, len(dsl.Aggregations))
	var aggNames []string
	for i, agg := range dsl.Aggregations {
		name := agg.OutputName()
		if _, dup := aggregations[name]; dup {
			return nil, query.QueryValidationError{Field: fmt.Sprintf("aggregations[%d].alias", i), Message: fmt.Sprintf("duplicate output column '%s'", name)}
		}
		expr, err := s.aggregateSQL(agg)
		if err != nil {
			return nil, err
		}
		aggregations[name] = fmt.Sprintf("%s AS %s", expr, quoteIdentifier(name))
		aggNames = append(aggNames, name)
	}

	var include, exclude []string
	if dsl.Projection != nil {
		for _, f := range dsl.Projection.Include {
			include = append(include, f.Name)
		}
		for _, f := range dsl.Projection.Exclude {
			exclude = append(exclude, f.Name)
		}
		if len(include) > 0 && len(exclude) > 0 {
			return nil, query.QueryValidationError{Field: "projection", Message: "cannot have both include and exclude fields"}
		}
	}

	var names []string
	switch {
	case len(include) > 0:
		names = append(names, include...)
		for _, name := range aggNames {
			if !containsName(include, name) {
				names = append(names, name)
			}
		}
	case dsl.IsGrouped():
		names = append(append(names, dsl.GroupBy...), aggNames...)
	default:
		names = s.schema.ColumnNames()
	}

	for _, name := range exclude {
		if !containsName(names, name) {
			return nil, &query.UnknownColumnError{Column: name, Stage: "select", Available: names}
		}
	}

	var out []selectColumn
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if containsName(exclude, name) {
			continue
		}
		if seen[name] {
			return nil, query.QueryValidationError{Field: "projection", Message: fmt.Sprintf("duplicate output column '%s'", name)}
		}
		seen[name] = true
		if expr, ok := aggregations[name]; ok {
			out = append(out, selectColumn{name: name, expr: expr})
			continue
		}
		if _, err := s.column(name, "select"); err != nil {
			return nil, err
		}
		out = append(out, selectColumn{name: name, expr: quoteIdentifier(name)})
	}
	return out, nil
}

func (s *SqliteQuery) aggregateSQL(agg query.AggregationConfiguration) (string, error) {
	if agg.Type == query.AggregationTypeCount && (agg.Field == "" || agg.Field == "*") {
		return "COUNT(*)", nil
	}
	switch agg.Type {
	case query.AggregationTypeCount, query.AggregationTypeSum, query.AggregationTypeAvg,
		query.AggregationTypeMin, query.AggregationTypeMax:
	default:
		return "", fmt.Errorf("unsupported aggregation type: %s", agg.Type)
	}

	col, err := s.column(agg.Field, "aggregate")
	if err != nil {
		return "", err
	}
	if (agg.Type == query.AggregationTypeAvg || agg.Type == query.AggregationTypeSum) && !col.Type.IsNumeric() {
		return "", &query.TypeMismatchError{Column: col.Name, Operation: "aggregate " + string(agg.Type), Type: string(col.Type)}
	}
	if agg.Type == query.AggregationTypeCount {
		return "COUNT(*)", nil
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(string(agg.Type)), quoteIdentifier(col.Name)), nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// buildWhereClause recursively builds the WHERE clause from a `query.QueryFilter` object.
func (s *SqliteQuery) buildWhereClause(filter *query.QueryFilter, params *[]any) (string, error) {
	if filter.Condition != nil {
		return s.buildCondition(filter.Condition, params)
	}
	if filter.Group != nil {
		if filter.Group.Operator == "" {
			return "", fmt.Errorf("logical operator missing in filter group")
		}
		if len(filter.Group.Conditions) == 0 {
			return "", query.QueryValidationError{Field: "filters.group", Message: fmt.Sprintf("'%s' group has no conditions", filter.Group.Operator)}
		}
		var clauses []string
		for i := range filter.Group.Conditions {
			clause, err := s.buildWhereClause(&filter.Group.Conditions[i], params)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		}
		switch filter.Group.Operator {
		case query.LogicalOperatorAnd:
			return fmt.Sprintf("(%s)", strings.Join(clauses, " AND ")), nil
		case query.LogicalOperatorOr:
			return fmt.Sprintf("(%s)", strings.Join(clauses, " OR ")), nil
		case query.LogicalOperatorNot:
			return fmt.Sprintf("NOT (%s)", strings.Join(clauses, " AND ")), nil
		default:
			return "", fmt.Errorf("unsupported logical operator: %q", filter.Group.Operator)
		}
	}
	return "", fmt.Errorf("invalid filter structure: neither Condition nor Group is set")
}

// buildCondition translates a single `query.FilterCondition` into a SQL condition string.
// String operators use instr and substr rather than LIKE so that matching is
// case-sensitive and free of wildcard escaping, as in the in-memory engine.
func (s *SqliteQuery) buildCondition(cond *query.FilterCondition, params *[]any) (string, error) {
	col, err := s.column(cond.Field, "filter")
	if err != nil {
		return "", err
	}
	accessor := quoteIdentifier(col.Name)

	switch cond.Operator {
	case query.ComparisonOperatorExists:
		return fmt.Sprintf("%s IS NOT NULL", accessor), nil
	case query.ComparisonOperatorNotExists:
		return fmt.Sprintf("%s IS NULL", accessor), nil

	case query.ComparisonOperatorEq, query.ComparisonOperatorNeq,
		query.ComparisonOperatorLt, query.ComparisonOperatorLte,
		query.ComparisonOperatorGt, query.ComparisonOperatorGte:
		preparedValue, err := prepareValueForQuery(col, cond.Operator, cond.Value)
		if err != nil {
			return "", err
		}
		*params = append(*params, preparedValue)
		return fmt.Sprintf("%s %s ?", accessor, comparisonSQL[cond.Operator]), nil

	case query.ComparisonOperatorIn, query.ComparisonOperatorNin:
		var vals []any
		switch v := cond.Value.(type) {
		case []any:
			vals = v
		case nil:
		default:
			vals = []any{v}
		}
		if len(vals) == 0 {
			if cond.Operator == query.ComparisonOperatorIn {
				return "1=0", nil // IN empty list is always false
			}
			return "1=1", nil // NOT IN empty list is always true
		}
		for _, v := range vals {
			preparedValue, err := prepareValueForQuery(col, cond.Operator, v)
			if err != nil {
				return "", err
			}
			*params = append(*params, preparedValue)
		}
		placeholders := strings.Repeat("?,", len(vals)-1) + "?"
		op := "IN"
		if cond.Operator == query.ComparisonOperatorNin {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", accessor, op, placeholders), nil

	case query.ComparisonOperatorContains, query.ComparisonOperatorNotContains,
		query.ComparisonOperatorStartsWith, query.ComparisonOperatorEndsWith:
		needle, ok := cond.Value.(string)
		if !ok || col.Type != schema.ColumnTypeString {
			return "", &query.TypeMismatchError{Column: col.Name, Operation: "filter " + string(cond.Operator), Type: string(col.Type)}
		}
		switch cond.Operator {
		case query.ComparisonOperatorContains:
			*params = append(*params, needle)
			return fmt.Sprintf("instr(%s, ?) > 0", accessor), nil
		case query.ComparisonOperatorNotContains:
			*params = append(*params, needle)
			return fmt.Sprintf("instr(%s, ?) = 0", accessor), nil
		case query.ComparisonOperatorStartsWith:
			*params = append(*params, needle)
			return fmt.Sprintf("instr(%s, ?) = 1", accessor), nil
		default:
			*params = append(*params, needle, needle)
			return fmt.Sprintf("substr(%s, length(%s) - length(?) + 1) = ?", accessor, accessor), nil
		}

	default:
		return "", fmt.Errorf("unsupported comparison operator for direct SQL: %s", cond.Operator)
	}
}

var comparisonSQL = map[query.ComparisonOperator]string{
	query.ComparisonOperatorEq:  "=",
	query.ComparisonOperatorNeq: "!=",
	query.ComparisonOperatorLt:  "<",
	query.ComparisonOperatorLte: "<=",
	query.ComparisonOperatorGt:  ">",
	query.ComparisonOperatorGte: ">=",
}

// GenerateInsertSQL creates a batch INSERT statement. Columns are listed in
// schema order and every record must hold exactly the schema's columns.
func (s *SqliteQuery) GenerateInsertSQL(records []schema.Document) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, fmt.Errorf("no records provided for insert")
	}

	validator := schema.NewValidator(s.schema)
	columns := s.schema.ColumnNames()
	quotedFields := make([]string, len(columns))
	for i, name := range columns {
		quotedFields[i] = quoteIdentifier(name)
	}
	rowPlaceholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	valuesClauses := make([]string, 0, len(records))
	queryParams := make([]any, 0, len(records)*len(columns))
	for i, record := range records {
		if valid, issues := validator.Validate(record, false); !valid {
			return "", nil, fmt.Errorf("record %d: %s", i, issues[0].Message)
		}
		coerced, err := validator.Coerce(record)
		if err != nil {
			return "", nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, name := range columns {
			queryParams = append(queryParams, coerced[name])
		}
		valuesClauses = append(valuesClauses, rowPlaceholders)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s;", quoteIdentifier(s.table), strings.Join(quotedFields, ", "), strings.Join(valuesClauses, ", "))
	return sql, queryParams, nil
}

// GenerateDeleteSQL creates a SQL DELETE query, using the schema's table name.
func (s *SqliteQuery) GenerateDeleteSQL(filters *query.QueryFilter, unsafeDelete bool) (string, []any, error) {
	var queryParams []any

	if filters == nil && !unsafeDelete {
		return "", nil, fmt.Errorf("DELETE without WHERE clause is not allowed for safety. Set unsafeDelete=true to override")
	}

	var whereSQL string
	if filters != nil {
		var err error
		whereSQL, err = s.buildWhereClause(filters, &queryParams)
		if err != nil {
			return "", nil, fmt.Errorf("error building WHERE clause for delete: %w", err)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("DELETE FROM %s", quoteIdentifier(s.table)))
	if whereSQL != "" {
		sb.WriteString(" WHERE " + whereSQL)
	}
	return sb.String() + ";", queryParams, nil
}
