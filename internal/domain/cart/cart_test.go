package cart

import (
	"math/rand"
	"testing"

	"github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priced(prices map[catalog.ItemID]int64) catalog.Catalog {
	items := make([]catalog.Item, 0, len(prices))
	for id, p := range prices {
		items = append(items, catalog.Item{ID: id, UnitPrice: decimal.NewFromInt(p)})
	}
	return catalog.New(items)
}

func TestSetQuantity(t *testing.T) {
	c := New()

	assert.True(t, c.SetQuantity("a", 2))
	assert.True(t, c.SetQuantity("b", 1))
	assert.True(t, c.SetQuantity("a", 3))
	assert.False(t, c.SetQuantity("a", 3))
	assert.False(t, c.SetQuantity("missing", 0))

	assert.Equal(t, []Line{{ItemID: "a", Quantity: 3}, {ItemID: "b", Quantity: 1}}, c.Lines())

	assert.True(t, c.SetQuantity("a", 0))
	assert.Equal(t, []Line{{ItemID: "b", Quantity: 1}}, c.Lines())
	assert.Equal(t, 1, c.Quantity("b"))

	assert.True(t, c.SetQuantity("b", -4))
	assert.True(t, c.IsEmpty())
}

func TestLinesMatchLastSetQuantities(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []catalog.ItemID{"a", "b", "c", "d", "e"}

	for round := 0; round < 200; round++ {
		c := New()
		want := map[catalog.ItemID]int{}
		for step := 0; step < 30; step++ {
			id := ids[rng.Intn(len(ids))]
			qty := rng.Intn(4)
			c.SetQuantity(id, qty)
			want[id] = qty
		}

		seen := map[catalog.ItemID]bool{}
		for _, l := range c.Lines() {
			require.False(t, seen[l.ItemID], "duplicate line for %s", l.ItemID)
			seen[l.ItemID] = true
			require.Equal(t, want[l.ItemID], l.Quantity)
		}
		for id, qty := range want {
			require.Equal(t, qty > 0, seen[id], "item %s with quantity %d", id, qty)
		}
	}
}

func TestTotal(t *testing.T) {
	cat := priced(map[catalog.ItemID]int64{"itemA": 1000, "itemB": 500})

	c := New()
	assert.True(t, c.Total(cat).IsZero())

	c.SetQuantity("itemA", 2)
	c.SetQuantity("itemB", 1)
	assert.True(t, c.Total(cat).Equal(decimal.NewFromInt(2500)))

	c.SetQuantity("gone", 7)
	assert.True(t, c.Total(cat).Equal(decimal.NewFromInt(2500)), "stale items contribute zero")
}

func TestTotalIsLinear(t *testing.T) {
	cat := priced(map[catalog.ItemID]int64{"a": 350, "b": 1290, "c": 75})
	c := New()
	c.SetQuantity("a", 3)
	c.SetQuantity("b", 1)
	before := c.Total(cat)

	c.SetQuantity("c", 4)
	after := c.Total(cat)

	assert.True(t, after.Equal(before.Add(decimal.NewFromInt(4*75))))
}

func TestClear(t *testing.T) {
	c := New()
	c.SetQuantity("a", 1)
	c.Clear()
	assert.Empty(t, c.Lines())
	assert.True(t, c.SetQuantity("a", 1))
	assert.Equal(t, 1, c.Len())
}
