package cart

import (
	"sync"
	"testing"

	domcart "github.com/Zhima-Mochi/snackshop/internal/domain/cart"
	"github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() catalog.Catalog {
	return catalog.New([]catalog.Item{
		{ID: "A", UnitPrice: decimal.NewFromInt(500)},
		{ID: "B", UnitPrice: decimal.NewFromInt(1200)},
	})
}

func TestStoreComputeTotal(t *testing.T) {
	s := NewStore()
	s.SetQuantity("A", 2)
	s.SetQuantity("B", 1)
	s.SetQuantity("A", 3)

	assert.True(t, decimal.NewFromInt(2700).Equal(s.ComputeTotal(testCatalog())))
	assert.Equal(t, []domcart.Line{{ItemID: "A", Quantity: 3}, {ItemID: "B", Quantity: 1}}, s.Lines())

	s.SetQuantity("A", 0)
	assert.Equal(t, 0, s.Quantity("A"))
	assert.True(t, decimal.NewFromInt(1200).Equal(s.ComputeTotal(testCatalog())))
}

func TestStoreObservers(t *testing.T) {
	s := NewStore()
	var got []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	s.SetQuantity("A", 1)
	s.SetQuantity("A", 1) // no change
	s.SetQuantity("Z", 0) // no change
	s.Clear()
	s.Clear() // already empty

	require.Len(t, got, 2)
	assert.Equal(t, []domcart.Line{{ItemID: "A", Quantity: 1}}, got[0].Lines)
	assert.Empty(t, got[1].Lines)

	unsubscribe()
	unsubscribe()
	s.SetQuantity("B", 2)
	assert.Len(t, got, 2)
}

func TestStoreObserverMayReadStore(t *testing.T) {
	s := NewStore()
	var seen int
	s.Subscribe(func(Snapshot) { seen = s.Quantity("A") })

	s.SetQuantity("A", 4)
	assert.Equal(t, 4, seen)
}

func TestStoreConcurrentMutations(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			s.SetQuantity("A", q+1)
			_ = s.Lines()
		}(i)
	}
	wg.Wait()

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Positive(t, lines[0].Quantity)
}
