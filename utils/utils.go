// Package utils converts between tagged Go structs and dataset rows.
package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-tabula/core/schema"
)

// StructToRow converts a flat Go struct into a schema.Document suitable for a
// dataset row.
//
// The struct is marshaled to JSON, honoring `json:"tag"` annotations and
// `omitempty`, and decoded back with json.Number so that numbers keep their
// exact form: integral values become int64 and everything else float64.
// Nested objects, arrays, booleans and nulls are rejected because dataset
// columns only hold scalars.
//
// The input `record` must be a struct or a pointer to a struct.
//
// Example:
//
//	type Point struct {
//		X int     `json:"x"`
//		Z float64 `json:"z"`
//	}
//	row, err := StructToRow(Point{X: -1, Z: 0.25})
//	// row will be schema.Document{"x": int64(-1), "z": 0.25}
func StructToRow[T any](record T) (schema.Document, error) {
	val := reflect.ValueOf(record)

	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	jsonBytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("StructToRow: failed to marshal input record to JSON: %w", err)
	}

	var tempMap map[string]any
	decoder := json.NewDecoder(bytes.NewReader(jsonBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&tempMap); err != nil {
		return nil, fmt.Errorf("StructToRow: failed to decode JSON to temporary map: %w", err)
	}

	row := make(schema.Document, len(tempMap))
	for key, value := range tempMap {
		switch v := value.(type) {
		case json.Number:
			if i, err := v.Int64(); err == nil {
				row[key] = i
				continue
			}
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("StructToRow: field '%s' holds an unrepresentable number %s: %w", key, v, err)
			}
			row[key] = f
		case string:
			row[key] = v
		default:
			return nil, fmt.Errorf("StructToRow: field '%s' holds %T; only numbers and strings are supported", key, value)
		}
	}

	return row, nil
}

// StructsToRows converts a slice of structs with StructToRow, stopping at the
// first failure.
func StructsToRows[T any](records []T) ([]schema.Document, error) {
	rows := make([]schema.Document, len(records))
	for i, record := range records {
		row, err := StructToRow(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows[i] = row
	}
	return rows, nil
}

// RowToStruct is a generic function that converts a dataset row into a new
// instance of the struct type `T`. It is the inverse of StructToRow.
//
// If `T` is a pointer type (e.g., `*Point`), a pointer to a newly populated
// struct is returned.
//
// Example:
//
//	p, err := RowToStruct[Point](schema.Document{"x": int64(-1), "z": 0.25})
//	// p will be Point{X: -1, Z: 0.25}
func RowToStruct[T any](input schema.Document) (T, error) {
	var zero T

	if input == nil {
		return zero, fmt.Errorf("RowToStruct: input row cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, fmt.Errorf("RowToStruct: generic type T must be a struct type (or pointer to struct)")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("RowToStruct: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	jsonBytes, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("RowToStruct: failed to marshal input row to JSON: %w", err)
	}

	var result T
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return zero, fmt.Errorf("RowToStruct: failed to unmarshal JSON to target struct: %w", err)
	}

	return result, nil
}
