package query

import (
	"fmt"
	"math"

	"github.com/asaidimu/go-tabula/core/schema"
)

// aggregateResultType returns the column type an aggregation produces for a
// source column: avg is always a number, count always an integer, and sum,
// min and max keep the source type.
func aggregateResultType(agg AggregationConfiguration, source schema.ColumnType) schema.ColumnType {
	switch agg.Type {
	case AggregationTypeAvg:
		return schema.ColumnTypeNumber
	case AggregationTypeCount:
		return schema.ColumnTypeInteger
	default:
		return source
	}
}

// computeAggregate evaluates one aggregation over the rows of a group.
func computeAggregate(agg AggregationConfiguration, rows []schema.Document) (any, error) {
	if agg.Type == AggregationTypeCount {
		return int64(len(rows)), nil
	}
	if len(rows) == 0 {
		return nil, &EmptyAggregationError{Alias: agg.OutputName()}
	}

	switch agg.Type {
	case AggregationTypeAvg:
		return mean(rows, agg.Field), nil
	case AggregationTypeSum:
		return sum(rows, agg.Field)
	case AggregationTypeMin, AggregationTypeMax:
		best := rows[0][agg.Field]
		for _, row := range rows[1:] {
			c := compareValues(row[agg.Field], best)
			if (agg.Type == AggregationTypeMin && c < 0) || (agg.Type == AggregationTypeMax && c > 0) {
				best = row[agg.Field]
			}
		}
		return best, nil
	default:
		return nil, fmt.Errorf("aggregate: unknown aggregation type: %s", agg.Type)
	}
}

// mean divides the column total by the row count; rows must be non-empty.
// Integer columns are summed exactly until the total would overflow int64,
// then the sum continues in compensated floating point.
func mean(rows []schema.Document, field string) float64 {
	n := float64(len(rows))
	if _, isInt := rows[0][field].(int64); !isInt {
		var acc neumaier
		for _, row := range rows {
			f, _ := ToFloat64(row[field])
			acc.add(f)
		}
		return acc.result() / n
	}

	var total int64
	for i, row := range rows {
		v, _ := row[field].(int64)
		next, ok := addInt64(total, v)
		if !ok {
			acc := newNeumaierInt(total)
			for _, rest := range rows[i:] {
				v, _ := rest[field].(int64)
				acc.addInt(v)
			}
			return acc.result() / n
		}
		total = next
	}
	return float64(total) / n
}

// sum adds integer columns exactly, failing with ErrIntegerOverflow when the
// total leaves the int64 range, and number columns with compensated summation.
func sum(rows []schema.Document, field string) (any, error) {
	if _, isInt := rows[0][field].(int64); isInt {
		var total int64
		for _, row := range rows {
			v, _ := row[field].(int64)
			next, ok := addInt64(total, v)
			if !ok {
				return nil, fmt.Errorf("aggregate: sum of '%s': %w", field, ErrIntegerOverflow)
			}
			total = next
		}
		return total, nil
	}

	var acc neumaier
	for _, row := range rows {
		f, _ := ToFloat64(row[field])
		acc.add(f)
	}
	return acc.result(), nil
}

// addInt64 returns a+b and false if the sum overflows.
func addInt64(a, b int64) (int64, bool) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, false
	}
	return s, true
}

// neumaier is a Kahan-Babuska-Neumaier accumulator, the scheme SQLite uses
// for SUM and AVG over REAL values and for integer sums past int64.
type neumaier struct {
	sum, err float64
}

func (n *neumaier) add(f float64) {
	t := n.sum + f
	if math.Abs(n.sum) > math.Abs(f) {
		n.err += (n.sum - t) + f
	} else {
		n.err += (f - t) + n.sum
	}
	n.sum = t
}

// newNeumaierInt seeds an accumulator with an integer total, keeping the low
// bits of large values in the error term.
func newNeumaierInt(v int64) neumaier {
	const exact = 1 << 52
	if v <= -exact || v >= exact {
		small := v % 16384
		return neumaier{sum: float64(v - small), err: float64(small)}
	}
	return neumaier{sum: float64(v)}
}

// addInt splits integers beyond 2^52 so the low bits are not lost to
// rounding before compensation.
func (n *neumaier) addInt(v int64) {
	const exact = 1 << 52
	if v <= -exact || v >= exact {
		small := v % 16384
		n.add(float64(v - small))
		n.add(float64(small))
		return
	}
	n.add(float64(v))
}

func (n *neumaier) result() float64 {
	if math.IsInf(n.err, 0) || math.IsNaN(n.err) {
		return n.sum
	}
	return n.sum + n.err
}
