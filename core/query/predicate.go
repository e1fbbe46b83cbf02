package query

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-tabula/core/schema"
)

// PredicateFunction is a Go function that implements a custom comparison
// operator. It receives the row, the condition's field and its value.
type PredicateFunction func(doc schema.Document, field string, args FilterValue) (bool, error)

// rowFilter is a filter compiled against a column set. Column and operand
// checks happen at compile time, so evaluation only fails inside custom
// predicate functions.
type rowFilter func(row schema.Document) (bool, error)

// columnSet is the view of a dataset the planner validates against.
type columnSet interface {
	Column(name string) (schema.ColumnDefinition, bool)
	ColumnNames() []string
}

// compileFilter translates a QueryFilter into a rowFilter. custom holds the
// registered functions for non-standard operators.
func compileFilter(filter *QueryFilter, cols columnSet, custom map[ComparisonOperator]PredicateFunction) (rowFilter, error) {
	if filter.Condition != nil {
		return compileCondition(filter.Condition, cols, custom)
	}
	if filter.Group != nil {
		return compileGroup(filter.Group, cols, custom)
	}
	return nil, fmt.Errorf("filter: empty or invalid filter structure")
}

func compileGroup(group *FilterGroup, cols columnSet, custom map[ComparisonOperator]PredicateFunction) (rowFilter, error) {
	if len(group.Conditions) == 0 {
		return nil, QueryValidationError{Field: "filters.group", Message: fmt.Sprintf("'%s' group has no conditions", group.Operator)}
	}
	parts := make([]rowFilter, 0, len(group.Conditions))
	for i := range group.Conditions {
		part, err := compileFilter(&group.Conditions[i], cols, custom)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	all := func(row schema.Document) (bool, error) {
		for _, part := range parts {
			passes, err := part(row)
			if err != nil || !passes {
				return false, err
			}
		}
		return true, nil
	}

	switch group.Operator {
	case LogicalOperatorAnd:
		return all, nil
	case LogicalOperatorOr:
		return func(row schema.Document) (bool, error) {
			for _, part := range parts {
				passes, err := part(row)
				if err != nil {
					return false, err
				}
				if passes {
					return true, nil
				}
			}
			return false, nil
		}, nil
	case LogicalOperatorNot:
		return func(row schema.Document) (bool, error) {
			passes, err := all(row)
			return !passes && err == nil, err
		}, nil
	default:
		return nil, fmt.Errorf("filter: unsupported logical operator: %q", group.Operator)
	}
}

func compileCondition(cond *FilterCondition, cols columnSet, custom map[ComparisonOperator]PredicateFunction) (rowFilter, error) {
	col, ok := cols.Column(cond.Field)
	if !ok {
		return nil, &UnknownColumnError{Column: cond.Field, Stage: "filter", Available: cols.ColumnNames()}
	}
	field := cond.Field

	if !cond.Operator.IsStandard() {
		fn, ok := custom[cond.Operator]
		if !ok {
			return nil, fmt.Errorf("filter: unregistered filter function for operator: %s", cond.Operator)
		}
		value := cond.Value
		return func(row schema.Document) (bool, error) {
			passes, err := fn(row, field, value)
			if err != nil {
				return false, fmt.Errorf("filter function %s on '%s': %w", cond.Operator, field, err)
			}
			return passes, nil
		}, nil
	}

	mismatch := &TypeMismatchError{Column: field, Operation: "filter " + string(cond.Operator), Type: string(col.Type)}

	switch cond.Operator {
	case ComparisonOperatorExists, ComparisonOperatorNotExists:
		want := cond.Operator == ComparisonOperatorExists
		return func(row schema.Document) (bool, error) {
			v, present := row[field]
			return (present && v != nil) == want, nil
		}, nil

	case ComparisonOperatorEq, ComparisonOperatorNeq:
		operand, ok := operandFor(col, cond.Value)
		if !ok {
			return nil, mismatch
		}
		want := cond.Operator == ComparisonOperatorEq
		return func(row schema.Document) (bool, error) {
			return (compareValues(row[field], operand) == 0) == want, nil
		}, nil

	case ComparisonOperatorLt, ComparisonOperatorLte, ComparisonOperatorGt, ComparisonOperatorGte:
		operand, ok := operandFor(col, cond.Value)
		if !ok {
			return nil, mismatch
		}
		test := orderingTest(cond.Operator)
		return func(row schema.Document) (bool, error) {
			return test(compareValues(row[field], operand)), nil
		}, nil

	case ComparisonOperatorIn, ComparisonOperatorNin:
		var raw []any
		switch v := cond.Value.(type) {
		case []any:
			raw = v
		case nil:
		default:
			raw = []any{v}
		}
		set := make([]any, 0, len(raw))
		for _, v := range raw {
			operand, ok := operandFor(col, v)
			if !ok {
				return nil, mismatch
			}
			set = append(set, operand)
		}
		want := cond.Operator == ComparisonOperatorIn
		return func(row schema.Document) (bool, error) {
			value := row[field]
			for _, candidate := range set {
				if compareValues(value, candidate) == 0 {
					return want, nil
				}
			}
			return !want, nil
		}, nil

	case ComparisonOperatorContains, ComparisonOperatorNotContains,
		ComparisonOperatorStartsWith, ComparisonOperatorEndsWith:
		needle, ok := cond.Value.(string)
		if !ok || col.Type != schema.ColumnTypeString {
			return nil, mismatch
		}
		var test func(s, needle string) bool
		switch cond.Operator {
		case ComparisonOperatorContains:
			test = strings.Contains
		case ComparisonOperatorNotContains:
			test = func(s, needle string) bool { return !strings.Contains(s, needle) }
		case ComparisonOperatorStartsWith:
			test = strings.HasPrefix
		default:
			test = strings.HasSuffix
		}
		return func(row schema.Document) (bool, error) {
			s, _ := row[field].(string)
			return test(s, needle), nil
		}, nil
	}

	return nil, fmt.Errorf("filter: unsupported comparison operator: %s", cond.Operator)
}

// operandFor normalizes a filter value and checks that it is comparable with
// the column: numbers with numeric columns, strings with string columns.
func operandFor(col schema.ColumnDefinition, value any) (any, bool) {
	normalized, actual, ok := schema.NormalizeValue(value)
	if !ok {
		return nil, false
	}
	if col.Type.IsNumeric() && actual.IsNumeric() {
		return normalized, true
	}
	if col.Type == schema.ColumnTypeString && actual == schema.ColumnTypeString {
		return normalized, true
	}
	return nil, false
}

func orderingTest(op ComparisonOperator) func(c int) bool {
	switch op {
	case ComparisonOperatorLt:
		return func(c int) bool { return c < 0 }
	case ComparisonOperatorLte:
		return func(c int) bool { return c <= 0 }
	case ComparisonOperatorGt:
		return func(c int) bool { return c > 0 }
	default:
		return func(c int) bool { return c >= 0 }
	}
}
