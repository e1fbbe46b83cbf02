package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-tabula/core/schema"
)

func TestPartition(t *testing.T) {
	rows := []schema.Document{
		{"k": int64(1), "s": "a"},
		{"k": 1.0, "s": "a"},
		{"k": int64(2), "s": "a"},
		{"k": int64(1), "s": "b"},
		{"k": int64(2), "s": "a"},
		{"k": math.Copysign(0, -1), "s": "z"},
		{"k": 0.0, "s": "z"},
		{"k": math.NaN(), "s": "n"},
		{"k": math.NaN(), "s": "n"},
	}

	groups := partition(rows, []string{"k", "s"})
	require.Len(t, groups, 5)

	sizes := make([]int, len(groups))
	total := 0
	for i, g := range groups {
		sizes[i] = len(g.Rows)
		total += len(g.Rows)
		for _, row := range g.Rows {
			assert.True(t, GroupKey{row["k"], row["s"]}.Equal(g.Key))
		}
	}
	assert.Equal(t, []int{2, 2, 1, 2, 2}, sizes)
	assert.Equal(t, len(rows), total)

	assert.Equal(t, GroupKey{int64(1), "a"}, groups[0].Key)
	assert.Equal(t, GroupKey{int64(2), "a"}, groups[1].Key)
	assert.Equal(t, GroupKey{int64(1), "b"}, groups[2].Key)
}

func TestPartition_KeepsRowOrderWithinGroups(t *testing.T) {
	rows := []schema.Document{
		{"g": "x", "i": int64(0)},
		{"g": "y", "i": int64(1)},
		{"g": "x", "i": int64(2)},
		{"g": "x", "i": int64(3)},
	}
	groups := partition(rows, []string{"g"})
	require.Len(t, groups, 2)
	assert.Equal(t, []schema.Document{rows[0], rows[2], rows[3]}, groups[0].Rows)
	assert.Equal(t, []schema.Document{rows[1]}, groups[1].Rows)
}

func TestPartition_EdgeCases(t *testing.T) {
	rows := []schema.Document{{"g": "x"}, {"g": "y"}}

	t.Run("no columns is one group", func(t *testing.T) {
		groups := partition(rows, nil)
		require.Len(t, groups, 1)
		assert.Empty(t, groups[0].Key)
		assert.Len(t, groups[0].Rows, 2)
	})

	t.Run("no rows is no groups", func(t *testing.T) {
		assert.Empty(t, partition(nil, []string{"g"}))
		assert.Empty(t, partition(nil, nil))
	})
}

func TestHashKey_SeparatesColumns(t *testing.T) {
	// Concatenation must not collide across column boundaries.
	h1, _ := hashKey(GroupKey{"ab", "c"}, nil)
	h2, _ := hashKey(GroupKey{"a", "bc"}, nil)
	assert.NotEqual(t, h1, h2)

	h3, _ := hashKey(GroupKey{int64(7)}, nil)
	h4, _ := hashKey(GroupKey{7.0}, nil)
	assert.Equal(t, h3, h4)
}
