package query

import (
	"slices"

	"github.com/asaidimu/go-tabula/core/schema"
)

// sortKey is a validated, resolved sort configuration.
type sortKey struct {
	field      string
	descending bool
}

// sortRows orders rows lexicographically by keys. The sort is stable: rows
// that compare equal on every key keep their relative order, which makes
// sorting twice by the same keys a no-op.
func sortRows(rows []schema.Document, keys []sortKey) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(rows, func(a, b schema.Document) int {
		for _, k := range keys {
			c := compareValues(a[k.field], b[k.field])
			if c == 0 {
				continue
			}
			if k.descending {
				return -c
			}
			return c
		}
		return 0
	})
}
