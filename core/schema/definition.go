package schema

import "fmt"

// LogicalOperator for combining conditions.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and" // All conditions must be true
	LogicalOr  LogicalOperator = "or"  // At least one condition must be true
	LogicalNot LogicalOperator = "not" // Negates a condition or group of conditions
)

// ColumnType represents the scalar types a dataset column may hold.
type ColumnType string

const (
	ColumnTypeInteger ColumnType = "integer" // Whole numbers, stored as int64
	ColumnTypeNumber  ColumnType = "number"  // Floating point, stored as float64
	ColumnTypeString  ColumnType = "string"  // Text data
)

// IsNumeric reports whether values of the type can be aggregated arithmetically.
func (t ColumnType) IsNumeric() bool {
	return t == ColumnTypeInteger || t == ColumnTypeNumber
}

// IsValid reports whether t is one of the supported column types.
func (t ColumnType) IsValid() bool {
	switch t {
	case ColumnTypeInteger, ColumnTypeNumber, ColumnTypeString:
		return true
	}
	return false
}

// ColumnDefinition describes a single column of a dataset.
type ColumnDefinition struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	// Description provides a brief explanation of the column.
	Description *string `json:"description,omitempty"`
}

// SchemaDefinition describes a named table: an ordered list of columns.
// Column order is significant; it is the default projection order of every
// dataset built from the schema.
type SchemaDefinition struct {
	Name        string             `json:"name"`
	Version     string             `json:"version"`
	Description *string            `json:"description,omitempty"`
	Columns     []ColumnDefinition `json:"columns"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

// ParseSchema decodes a schema definition from JSON or YAML and validates it.
func ParseSchema(data []byte) (*SchemaDefinition, error) {
	var s SchemaDefinition
	if err := DecodeYAML(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode schema definition: %w", err)
	}
	if result := ValidateSchema(&s); !result.Valid {
		return nil, &SchemaError{Schema: s.Name, Issues: result.Issues}
	}
	return &s, nil
}

// ColumnNames returns the column names in declaration order.
func (s *SchemaDefinition) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Issue is a single problem found while validating a schema or a document.
type Issue struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Path        string `json:"path,omitempty"`
	Severity    string `json:"severity,omitempty"` // e.g., "error", "warning"
	Description string `json:"description,omitempty"`
}

type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// SchemaError is returned when a schema definition fails validation.
type SchemaError struct {
	Schema string
	Issues []Issue
}

func (e *SchemaError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("invalid schema '%s'", e.Schema)
	}
	return fmt.Sprintf("invalid schema '%s': %s (and %d more)", e.Schema, e.Issues[0].Message, len(e.Issues)-1)
}

// Document is a single row, keyed by column name.
type Document map[string]any
