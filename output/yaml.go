package output

import (
	"io"

	"github.com/asaidimu/go-tabula/core/dataset"
	"sigs.k8s.io/yaml"
)

// YAMLFormatter outputs a Dataset as a YAML sequence of row mappings.
type YAMLFormatter struct {
	writer io.Writer
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	return &YAMLFormatter{writer: w}
}

// SetOutput sets the output writer
func (y *YAMLFormatter) SetOutput(w io.Writer) {
	y.writer = w
}

// Format writes all rows as one document. Mapping keys are sorted and an
// empty dataset is written as [].
func (y *YAMLFormatter) Format(ds *dataset.Dataset) error {
	data, err := yaml.Marshal(ds.Rows())
	if err != nil {
		return err
	}
	_, err = y.writer.Write(data)
	return err
}
