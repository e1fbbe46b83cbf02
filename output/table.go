package output

import (
	"io"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/olekukonko/tablewriter"
)

// TableFormatter renders a Dataset as an aligned text table with a row count
// footer.
type TableFormatter struct {
	writer io.Writer
}

// NewTableFormatter creates a table formatter writing to w.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// SetOutput sets the output writer
func (f *TableFormatter) SetOutput(w io.Writer) {
	f.writer = w
}

// Format writes the dataset. Numeric columns are right aligned.
func (f *TableFormatter) Format(ds *dataset.Dataset) error {
	columns := ds.Columns()

	table := tablewriter.NewWriter(f.writer)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(ds.ColumnNames())

	alignments := make([]int, len(columns))
	for i, col := range columns {
		if col.Type.IsNumeric() {
			alignments[i] = tablewriter.ALIGN_RIGHT
		} else {
			alignments[i] = tablewriter.ALIGN_LEFT
		}
	}
	table.SetColumnAlignment(alignments)

	for _, row := range ds.Rows() {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = formatValue(row[col.Name])
		}
		table.Append(record)
	}
	table.Render()

	_, err := io.WriteString(f.writer, rowCount(ds.Len()))
	return err
}

func rowCount(n int) string {
	if n == 1 {
		return "(1 row)\n"
	}
	return "(" + formatValue(int64(n)) + " rows)\n"
}
