// Package dataset defines Dataset, the immutable, ordered, fixed-schema
// collection of rows that the query engine reads from and produces.
package dataset

import (
	"errors"
	"fmt"
	"maps"
	"reflect"

	"github.com/asaidimu/go-tabula/core/schema"
)

var (
	// ErrColumnMismatch is returned when a row's key set differs from the
	// dataset's column set.
	ErrColumnMismatch = errors.New("row columns do not match dataset columns")
	// ErrUnsupportedValue is returned for values that are not int, float or
	// string scalars, or that do not fit the declared column type.
	ErrUnsupportedValue = errors.New("unsupported value")
	// ErrDuplicateColumn is returned when a column name is declared twice.
	ErrDuplicateColumn = errors.New("duplicate column")
)

// Dataset is an ordered sequence of rows sharing one column set. It is
// immutable once constructed: accessors hand out copies, and every query
// produces a new Dataset. A Dataset may be read from many goroutines at once.
type Dataset struct {
	columns []schema.ColumnDefinition
	index   map[string]int
	rows    []schema.Document
}

// New builds a Dataset from typed column definitions and rows. Every row must
// contain exactly the declared columns. Values are normalized to int64,
// float64 or string; integer values in number columns are widened to float64.
// The input rows are copied and never retained.
func New(columns []schema.ColumnDefinition, rows []schema.Document) (*Dataset, error) {
	ds, err := newEmpty(columns)
	if err != nil {
		return nil, err
	}

	ds.rows = make([]schema.Document, 0, len(rows))
	for i, row := range rows {
		normalized, err := ds.normalizeRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		ds.rows = append(ds.rows, normalized)
	}
	return ds, nil
}

// FromRows builds a Dataset from column names and rows, inferring column types
// from the values: a column of only integers is an integer column, a numeric
// column with at least one float is a number column, and a column of strings
// is a string column. Columns of an empty dataset default to number.
func FromRows(columns []string, rows []schema.Document) (*Dataset, error) {
	defs := make([]schema.ColumnDefinition, len(columns))
	for i, name := range columns {
		colType, err := inferColumnType(name, rows)
		if err != nil {
			return nil, err
		}
		defs[i] = schema.ColumnDefinition{Name: name, Type: colType}
	}
	return New(defs, rows)
}

// FromSchema builds a Dataset using the column order and types of a schema
// definition. Values are coerced to the declared types, so numeric strings
// read from loosely typed stores are accepted.
func FromSchema(def *schema.SchemaDefinition, rows []schema.Document) (*Dataset, error) {
	if result := schema.ValidateSchema(def); !result.Valid {
		return nil, &schema.SchemaError{Schema: def.Name, Issues: result.Issues}
	}

	validator := schema.NewValidator(def)
	coerced := make([]schema.Document, len(rows))
	for i, row := range rows {
		doc, err := validator.Coerce(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w: %v", i, ErrUnsupportedValue, err)
		}
		if len(doc) != len(row) {
			return nil, fmt.Errorf("row %d: %w", i, ErrColumnMismatch)
		}
		coerced[i] = doc
	}
	return New(def.Columns, coerced)
}

// Empty returns a Dataset with the given columns and no rows.
func Empty(columns []schema.ColumnDefinition) (*Dataset, error) {
	ds, err := newEmpty(columns)
	if err != nil {
		return nil, err
	}
	ds.rows = []schema.Document{}
	return ds, nil
}

func newEmpty(columns []schema.ColumnDefinition) (*Dataset, error) {
	ds := &Dataset{
		columns: make([]schema.ColumnDefinition, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if _, dup := ds.index[col.Name]; dup {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicateColumn, col.Name)
		}
		if !col.Type.IsValid() {
			return nil, fmt.Errorf("%w: column '%s' has type '%s'", ErrUnsupportedValue, col.Name, col.Type)
		}
		ds.index[col.Name] = i
		ds.columns[i] = col
	}
	return ds, nil
}

func (d *Dataset) normalizeRow(row schema.Document) (schema.Document, error) {
	if len(row) != len(d.columns) {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrColumnMismatch, len(d.columns), len(row))
	}

	out := make(schema.Document, len(d.columns))
	for _, col := range d.columns {
		raw, ok := row[col.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column '%s'", ErrColumnMismatch, col.Name)
		}
		value, actual, ok := schema.NormalizeValue(raw)
		if !ok {
			return nil, fmt.Errorf("%w: column '%s' holds %T", ErrUnsupportedValue, col.Name, raw)
		}
		switch {
		case actual == col.Type:
		case col.Type == schema.ColumnTypeNumber && actual == schema.ColumnTypeInteger:
			value = float64(value.(int64))
		default:
			return nil, fmt.Errorf("%w: column '%s' is %s, got %s", ErrUnsupportedValue, col.Name, col.Type, actual)
		}
		out[col.Name] = value
	}
	return out, nil
}

func inferColumnType(name string, rows []schema.Document) (schema.ColumnType, error) {
	var inferred schema.ColumnType
	for i, row := range rows {
		raw, ok := row[name]
		if !ok {
			return "", fmt.Errorf("row %d: %w: missing column '%s'", i, ErrColumnMismatch, name)
		}
		_, actual, ok := schema.NormalizeValue(raw)
		if !ok {
			return "", fmt.Errorf("row %d: %w: column '%s' holds %T", i, ErrUnsupportedValue, name, raw)
		}
		switch {
		case inferred == "" || inferred == actual:
			inferred = actual
		case inferred.IsNumeric() && actual.IsNumeric():
			inferred = schema.ColumnTypeNumber
		default:
			return "", fmt.Errorf("row %d: %w: column '%s' mixes %s and %s", i, ErrUnsupportedValue, name, inferred, actual)
		}
	}
	if inferred == "" {
		inferred = schema.ColumnTypeNumber
	}
	return inferred, nil
}

// Columns returns a copy of the column definitions in order.
func (d *Dataset) Columns() []schema.ColumnDefinition {
	out := make([]schema.ColumnDefinition, len(d.columns))
	copy(out, d.columns)
	return out
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column definition by name.
func (d *Dataset) Column(name string) (schema.ColumnDefinition, bool) {
	i, ok := d.index[name]
	if !ok {
		return schema.ColumnDefinition{}, false
	}
	return d.columns[i], true
}

// HasColumn reports whether name is part of the column set.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Row returns a copy of the i-th row. It panics if i is out of range.
func (d *Dataset) Row(i int) schema.Document {
	return maps.Clone(d.rows[i])
}

// Rows returns copies of all rows in order.
func (d *Dataset) Rows() []schema.Document {
	out := make([]schema.Document, len(d.rows))
	for i, row := range d.rows {
		out[i] = maps.Clone(row)
	}
	return out
}

// Value returns the value of column in the i-th row.
func (d *Dataset) Value(i int, column string) (any, bool) {
	v, ok := d.rows[i][column]
	return v, ok
}

// Scan calls fn for each row in order until fn returns false. The row passed
// to fn is shared with the dataset and must not be modified or retained.
func (d *Dataset) Scan(fn func(i int, row schema.Document) bool) {
	for i, row := range d.rows {
		if !fn(i, row) {
			return
		}
	}
}

// Equal reports whether two datasets have the same columns and the same rows
// in the same order.
func (d *Dataset) Equal(other *Dataset) bool {
	if d == nil || other == nil {
		return d == other
	}
	return reflect.DeepEqual(d.columns, other.columns) && reflect.DeepEqual(d.rows, other.rows)
}
