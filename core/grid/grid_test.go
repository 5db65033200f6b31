package grid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductSize(t *testing.T) {
	table := Product(
		Axis{Name: "model", Values: []any{"A", "B"}},
		Axis{Name: "seed", Values: []any{1, 2, 3}},
		Axis{Name: "l2_reg", Values: []any{0.0, 0.001}},
	)
	assert.Equal(t, 12, table.Len())
	assert.Equal(t, []string{"model", "seed", "l2_reg"}, table.Columns)
}

func TestProductOrderingLastAxisFastest(t *testing.T) {
	table := Product(
		Axis{Name: "model", Values: []any{"A", "B"}},
		Axis{Name: "seed", Values: []any{1, 2}},
	)
	require.Equal(t, 4, table.Len())

	want := [][2]any{{"A", 1}, {"A", 2}, {"B", 1}, {"B", 2}}
	for i, row := range table.Rows {
		assert.Equal(t, want[i][0], row["model"], "row %d model", i)
		assert.Equal(t, want[i][1], row["seed"], "row %d seed", i)
	}
}

func TestProductCombinationsUnique(t *testing.T) {
	table := Product(
		Axis{Name: "a", Values: []any{1, 2, 3}},
		Axis{Name: "b", Values: []any{"x", "y"}},
		Axis{Name: "c", Values: []any{true, false}},
	)
	seen := make(map[string]struct{})
	for _, row := range table.Rows {
		key := fmt.Sprint(row["a"], row["b"], row["c"])
		_, dup := seen[key]
		require.False(t, dup, "duplicate combination %s", key)
		seen[key] = struct{}{}
	}
	assert.Len(t, seen, 12)
}

func TestProductEmptyAxisYieldsNoRows(t *testing.T) {
	table := Product(
		Axis{Name: "model", Values: []any{"A", "B"}},
		Axis{Name: "seed", Values: nil},
	)
	assert.Equal(t, 0, table.Len())
}

func TestNunique(t *testing.T) {
	table := Product(
		Axis{Name: "model", Values: []any{"A", "B"}},
		Axis{Name: "seed", Values: []any{1, 2, 3}},
	)
	table.SetColumn("timeout", 60)

	counts := table.Nunique()
	assert.Equal(t, 2, counts["model"])
	assert.Equal(t, 3, counts["seed"])
	assert.Equal(t, 1, counts["timeout"])
}

func TestDeriveColumn(t *testing.T) {
	table := Product(
		Axis{Name: "epochs", Values: []any{10, 20}},
	)
	table.DeriveColumn("warmup", func(r Record) any {
		return r["epochs"].(int) / 10
	})

	assert.Equal(t, 1, table.Rows[0]["warmup"])
	assert.Equal(t, 2, table.Rows[1]["warmup"])
	assert.Contains(t, table.Columns, "warmup")
}

func TestFilter(t *testing.T) {
	table := Product(
		Axis{Name: "seed", Values: []any{1, 2, 3, 4}},
	)
	kept := table.Filter(func(r Record) bool { return r["seed"].(int)%2 == 0 })
	require.Equal(t, 2, kept.Len())
	assert.Equal(t, 2, kept.Rows[0]["seed"])
	assert.Equal(t, 4, kept.Rows[1]["seed"])
}
