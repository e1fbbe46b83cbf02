// Package reader loads Apache Parquet files into immutable Datasets.
//
// Only flat files are supported: every top-level field must be a required
// scalar of an integer, floating point or byte array physical type. Nested,
// repeated and optional columns are rejected because dataset cells are
// non-null scalars.
package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// ErrUnsupportedColumn is returned for parquet columns that cannot be
// represented in a dataset.
var ErrUnsupportedColumn = errors.New("unsupported parquet column")

// rowBatch is the number of rows read from a row group per call.
const rowBatch = 256

// ParquetReader reads a parquet file into a Dataset.
//
// It maintains both an OS file handle and a parquet file handle to enable
// proper resource cleanup.
type ParquetReader struct {
	file   *os.File
	pqFile *parquet.File
	logger *zap.Logger
}

// NewParquetReader opens the parquet file at path.
//
// Example:
//
//	r, err := NewParquetReader("points.parquet", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	ds, err := r.Dataset()
func NewParquetReader(path string, logger *zap.Logger) (*ParquetReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	return &ParquetReader{file: file, pqFile: pqFile, logger: logger}, nil
}

// Columns maps the parquet schema to dataset column definitions in file order.
func (r *ParquetReader) Columns() ([]schema.ColumnDefinition, error) {
	fields := r.pqFile.Schema().Fields()
	columns := make([]schema.ColumnDefinition, 0, len(fields))
	for _, field := range fields {
		if !field.Leaf() || field.Repeated() || field.Optional() {
			return nil, fmt.Errorf("%w: '%s' must be a required scalar", ErrUnsupportedColumn, field.Name())
		}
		columnType, err := columnType(field.Type().Kind())
		if err != nil {
			return nil, fmt.Errorf("%w: '%s': %v", ErrUnsupportedColumn, field.Name(), err)
		}
		columns = append(columns, schema.ColumnDefinition{Name: field.Name(), Type: columnType})
	}
	return columns, nil
}

func columnType(kind parquet.Kind) (schema.ColumnType, error) {
	switch kind {
	case parquet.Int32, parquet.Int64:
		return schema.ColumnTypeInteger, nil
	case parquet.Float, parquet.Double:
		return schema.ColumnTypeNumber, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return schema.ColumnTypeString, nil
	default:
		return "", fmt.Errorf("physical type %s has no column type", kind)
	}
}

// Dataset reads every row group of the file into a Dataset. The whole file
// is loaded into memory.
func (r *ParquetReader) Dataset() (*dataset.Dataset, error) {
	columns, err := r.Columns()
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, r.pqFile.NumRows())
	buf := make([]parquet.Row, rowBatch)
	for _, rowGroup := range r.pqFile.RowGroups() {
		rows := rowGroup.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				doc, convErr := toDocument(columns, row)
				if convErr != nil {
					_ = rows.Close()
					return nil, convErr
				}
				docs = append(docs, doc)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				_ = rows.Close()
				return nil, fmt.Errorf("failed to read rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("failed to close row group: %w", err)
		}
	}

	r.logger.Debug("Read parquet file", zap.String("file", r.file.Name()), zap.Int("rows", len(docs)), zap.Int("columns", len(columns)))
	return dataset.New(columns, docs)
}

func toDocument(columns []schema.ColumnDefinition, row parquet.Row) (schema.Document, error) {
	doc := make(schema.Document, len(columns))
	for _, v := range row {
		i := v.Column()
		if i < 0 || i >= len(columns) {
			return nil, fmt.Errorf("%w: value for column index %d", ErrUnsupportedColumn, i)
		}
		name := columns[i].Name
		if v.IsNull() {
			return nil, fmt.Errorf("%w: null value in column '%s'", ErrUnsupportedColumn, name)
		}
		switch v.Kind() {
		case parquet.Int32:
			doc[name] = int64(v.Int32())
		case parquet.Int64:
			doc[name] = v.Int64()
		case parquet.Float:
			doc[name] = float64(v.Float())
		case parquet.Double:
			doc[name] = v.Double()
		case parquet.ByteArray, parquet.FixedLenByteArray:
			doc[name] = string(v.ByteArray())
		default:
			return nil, fmt.Errorf("%w: value of kind %s in column '%s'", ErrUnsupportedColumn, v.Kind(), name)
		}
	}
	return doc, nil
}

// Close closes the underlying file. It is safe to call Close multiple times.
func (r *ParquetReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ReadDataset opens, reads and closes a single parquet file.
func ReadDataset(path string, logger *zap.Logger) (*dataset.Dataset, error) {
	r, err := NewParquetReader(path, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return r.Dataset()
}

// ReadDatasets reads every parquet file matching a glob pattern and
// concatenates them in lexical path order. All files must share the same
// columns in the same order. A pattern without wildcards reads one file.
func ReadDatasets(pattern string, logger *zap.Logger) (*dataset.Dataset, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return ReadDataset(pattern, logger)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match pattern: %s", pattern)
	}

	var columns []schema.ColumnDefinition
	var rows []schema.Document
	for _, path := range matches {
		ds, err := ReadDataset(path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if columns == nil {
			columns = ds.Columns()
		} else if !sameColumns(columns, ds.Columns()) {
			return nil, fmt.Errorf("%w: %s has columns %v, expected %v", dataset.ErrColumnMismatch, path, ds.ColumnNames(), names(columns))
		}
		rows = append(rows, ds.Rows()...)
	}
	return dataset.New(columns, rows)
}

func sameColumns(a, b []schema.ColumnDefinition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}

func names(columns []schema.ColumnDefinition) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Name
	}
	return out
}
