package output

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/asaidimu/go-tabula/core/dataset"
)

// CSVFormatter outputs a Dataset as CSV with a header row.
type CSVFormatter struct {
	writer io.Writer
}

// NewCSVFormatter creates a new CSV formatter
func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{writer: w}
}

// SetOutput sets the output writer
func (c *CSVFormatter) SetOutput(w io.Writer) {
	c.writer = w
}

// Format writes the header followed by one record per row. Columns follow
// the dataset order. An empty dataset still writes its header.
func (c *CSVFormatter) Format(ds *dataset.Dataset) error {
	w := csv.NewWriter(c.writer)
	columns := ds.ColumnNames()
	if err := w.Write(columns); err != nil {
		return err
	}

	for _, row := range ds.Rows() {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = csvValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// csvValue prefixes strings that a spreadsheet would evaluate as a formula.
func csvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return formatValue(v)
	}
	if len(s) > 0 && strings.ContainsAny(s[:1], "=+-@\t\r\n|") {
		return "'" + s
	}
	return s
}
