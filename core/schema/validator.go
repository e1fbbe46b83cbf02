// Package schema provides the Validator, which checks that rows conform to a
// schema definition, along with the column type helpers shared by the dataset,
// query and storage packages.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Validator is responsible for validating rows against a schema. It checks
// that every declared column is present, that no undeclared column appears,
// and that each value matches its column type.
type Validator struct {
	schema *SchemaDefinition
	issues []Issue
}

// NewValidator creates a new Validator instance for a given schema.
// The returned validator can be reused for multiple validation operations but
// is not safe for concurrent use.
func NewValidator(schema *SchemaDefinition) *Validator {
	return &Validator{
		schema: schema,
		issues: make([]Issue, 0),
	}
}

// Validate checks if a given row conforms to the validator's schema.
// It returns a boolean indicating whether the validation was successful, and a slice
// of any issues that were found. The `loose` parameter can be used to ignore
// missing columns.
func (v *Validator) Validate(data map[string]any, loose bool) (bool, []Issue) {
	v.issues = make([]Issue, 0)

	for _, col := range v.schema.Columns {
		value, exists := data[col.Name]
		if !exists {
			if !loose {
				v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required column '%s' is missing", col.Name), col.Name)
			}
			continue
		}
		v.validateValue(value, col)
	}

	for key := range data {
		if v.schema.FindColumn(key) == nil {
			v.addIssue("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected column '%s' not defined in schema", key), key)
		}
	}

	return len(v.issues) == 0, v.issues
}

// Coerce returns a copy of data with every declared column converted to the
// canonical Go type for its column type. String values are parsed where the
// column is numeric. It fails on the first value that cannot be converted.
func (v *Validator) Coerce(data map[string]any) (Document, error) {
	out := make(Document, len(data))
	for _, col := range v.schema.Columns {
		value, exists := data[col.Name]
		if !exists {
			continue
		}
		coerced, ok := coerceValue(value, col.Type)
		if !ok {
			return nil, fmt.Errorf("column '%s': cannot convert %T to %s", col.Name, value, col.Type)
		}
		out[col.Name] = coerced
	}
	return out, nil
}

func (v *Validator) validateValue(value any, col ColumnDefinition) {
	if _, ok := coerceValue(value, col.Type); !ok {
		v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Column '%s' expects %s, got %T", col.Name, col.Type, value), col.Name)
	}
}

func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, Issue{
		Code:     code,
		Message:  message,
		Path:     path,
		Severity: "error",
	})
}

// coerceValue attempts to convert a value to the canonical type for expectedType.
func coerceValue(value any, expectedType ColumnType) (any, bool) {
	normalized, actual, ok := NormalizeValue(value)
	if !ok {
		return value, false
	}

	switch expectedType {
	case ColumnTypeString:
		if actual == ColumnTypeString {
			return normalized, true
		}
	case ColumnTypeInteger:
		switch actual {
		case ColumnTypeInteger:
			return normalized, true
		case ColumnTypeNumber:
			f := normalized.(float64)
			if f == float64(int64(f)) {
				return int64(f), true
			}
		case ColumnTypeString:
			str := strings.TrimSpace(normalized.(string))
			if intVal, err := strconv.ParseInt(str, 10, 64); err == nil {
				return intVal, true
			}
		}
	case ColumnTypeNumber:
		switch actual {
		case ColumnTypeNumber:
			return normalized, true
		case ColumnTypeInteger:
			return float64(normalized.(int64)), true
		case ColumnTypeString:
			if floatVal, err := strconv.ParseFloat(strings.TrimSpace(normalized.(string)), 64); err == nil {
				return floatVal, true
			}
		}
	}
	return value, false
}

// NormalizeValue converts any supported Go scalar to its canonical
// representation (int64, float64 or string) and reports its column type.
// The boolean result is false for unsupported values, including nil.
func NormalizeValue(v any) (any, ColumnType, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), ColumnTypeInteger, true
	case int8:
		return int64(val), ColumnTypeInteger, true
	case int16:
		return int64(val), ColumnTypeInteger, true
	case int32:
		return int64(val), ColumnTypeInteger, true
	case int64:
		return val, ColumnTypeInteger, true
	case uint8:
		return int64(val), ColumnTypeInteger, true
	case uint16:
		return int64(val), ColumnTypeInteger, true
	case uint32:
		return int64(val), ColumnTypeInteger, true
	case float32:
		return float64(val), ColumnTypeNumber, true
	case float64:
		return val, ColumnTypeNumber, true
	case string:
		return val, ColumnTypeString, true
	case []byte:
		return string(val), ColumnTypeString, true
	default:
		return nil, "", false
	}
}

// ValidateSchema checks a schema definition for structural problems: missing
// name, empty or duplicate column names and unsupported column types.
func ValidateSchema(s *SchemaDefinition) ValidationResult {
	var issues []Issue
	add := func(code, message, path string) {
		issues = append(issues, Issue{Code: code, Message: message, Path: path, Severity: "error"})
	}

	if s.Name == "" {
		add("SCHEMA_NAME_MISSING", "schema must define a table name", "name")
	}
	if len(s.Columns) == 0 {
		add("SCHEMA_COLUMNS_MISSING", "schema must define at least one column", "columns")
	}

	seen := make(map[string]struct{}, len(s.Columns))
	for i, col := range s.Columns {
		path := fmt.Sprintf("columns[%d]", i)
		if col.Name == "" {
			add("COLUMN_NAME_MISSING", "column name cannot be empty", path)
			continue
		}
		if _, dup := seen[col.Name]; dup {
			add("COLUMN_DUPLICATE", fmt.Sprintf("column '%s' is declared more than once", col.Name), path)
		}
		seen[col.Name] = struct{}{}
		if !col.Type.IsValid() {
			add("COLUMN_TYPE_INVALID", fmt.Sprintf("column '%s' has unsupported type '%s'", col.Name, col.Type), path+".type")
		}
	}

	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}
