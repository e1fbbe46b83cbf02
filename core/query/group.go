package query

import (
	"encoding/binary"
	"math"

	"github.com/dchest/siphash"

	"github.com/asaidimu/go-tabula/core/schema"
)

// GroupKey is the ordered tuple of group-by column values shared by every
// row of a group.
type GroupKey []any

// Equal reports whether two keys hold equal values position by position.
func (k GroupKey) Equal(other GroupKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if !valuesEqual(k[i], other[i]) {
			return false
		}
	}
	return true
}

// Group is one partition of the filtered rows.
type Group struct {
	Key  GroupKey
	Rows []schema.Document
}

// partition splits rows into groups by the values of columns. Groups are
// returned in the order their first row was encountered, and rows keep their
// input order within a group. With no columns every row lands in one group;
// with no rows there are no groups.
func partition(rows []schema.Document, columns []string) []*Group {
	if len(rows) == 0 {
		return nil
	}
	if len(columns) == 0 {
		return []*Group{{Key: GroupKey{}, Rows: rows}}
	}

	var groups []*Group
	buckets := make(map[[2]uint64][]int)
	var buf []byte

	for _, row := range rows {
		key := make(GroupKey, len(columns))
		for i, col := range columns {
			key[i] = row[col]
		}

		var h [2]uint64
		h, buf = hashKey(key, buf)

		found := -1
		for _, idx := range buckets[h] {
			if groups[idx].Key.Equal(key) {
				found = idx
				break
			}
		}
		if found < 0 {
			found = len(groups)
			groups = append(groups, &Group{Key: key})
			buckets[h] = append(buckets[h], found)
		}
		groups[found].Rows = append(groups[found].Rows, row)
	}
	return groups
}

// hashKey chains siphash over the encoded key values, seeding each column's
// hash with the previous one. Values that valuesEqual treats as equal encode
// identically: numbers are hashed as canonical float64 bits.
func hashKey(key GroupKey, buf []byte) ([2]uint64, []byte) {
	var k0, k1 uint64
	for _, v := range key {
		buf = encodeKeyValue(buf[:0], v)
		k0, k1 = siphash.Hash128(k0, k1, buf)
	}
	return [2]uint64{k0, k1}, buf
}

func encodeKeyValue(buf []byte, v any) []byte {
	if f, ok := ToFloat64(v); ok && isNumber(v) {
		switch {
		case math.IsNaN(f):
			f = math.NaN()
		case f == 0:
			f = 0 // fold -0 into +0
		}
		buf = append(buf, 'n')
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}
	if s, ok := v.(string); ok {
		buf = append(buf, 's')
		return append(buf, s...)
	}
	return append(buf, 'z')
}
