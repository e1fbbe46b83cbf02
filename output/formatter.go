// Package output renders query results for presentation.
//
// Formatters write a Dataset to an io.Writer in column order. ToDataFrame
// hands a Dataset to gota for callers that continue in a dataframe library.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/asaidimu/go-tabula/core/dataset"
)

// Formatter writes a Dataset to its output.
type Formatter interface {
	Format(ds *dataset.Dataset) error
	SetOutput(w io.Writer)
}

// Format names accepted by NewFormatter.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// NewFormatter returns the formatter registered under name.
func NewFormatter(name string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(name) {
	case FormatTable, "":
		return NewTableFormatter(w), nil
	case FormatCSV:
		return NewCSVFormatter(w), nil
	case FormatJSON:
		return NewJSONFormatter(w), nil
	case FormatYAML, "yml":
		return NewYAMLFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", name)
	}
}

// formatValue renders a cell. Integers print without a fractional part and
// floats use the shortest representation that round-trips.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
