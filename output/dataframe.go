package output

import (
	"fmt"

	"github.com/asaidimu/go-tabula/core/dataset"
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ToDataFrame converts a Dataset into a gota DataFrame with one series per
// column. Integer columns become series.Int, which holds a Go int.
func ToDataFrame(ds *dataset.Dataset) (dataframe.DataFrame, error) {
	columns := ds.Columns()
	if len(columns) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("cannot build a dataframe without columns")
	}

	cols := make([]series.Series, 0, len(columns))
	for _, col := range columns {
		s, err := toSeries(ds, col)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		cols = append(cols, s)
	}

	df := dataframe.New(cols...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to build dataframe: %w", df.Err)
	}
	return df, nil
}

func toSeries(ds *dataset.Dataset, col schema.ColumnDefinition) (series.Series, error) {
	n := ds.Len()
	switch col.Type {
	case schema.ColumnTypeInteger:
		vals := make([]int, n)
		for i := range vals {
			vals[i] = int(value(ds, i, col.Name).(int64))
		}
		return series.New(vals, series.Int, col.Name), nil
	case schema.ColumnTypeNumber:
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = value(ds, i, col.Name).(float64)
		}
		return series.New(vals, series.Float, col.Name), nil
	case schema.ColumnTypeString:
		vals := make([]string, n)
		for i := range vals {
			vals[i] = value(ds, i, col.Name).(string)
		}
		return series.New(vals, series.String, col.Name), nil
	default:
		return series.Series{}, fmt.Errorf("column '%s' has unsupported type '%s'", col.Name, col.Type)
	}
}

func value(ds *dataset.Dataset, i int, column string) any {
	v, _ := ds.Value(i, column)
	return v
}
