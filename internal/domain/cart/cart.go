// Package cart holds the draft selection of items the user is composing.
package cart

import (
	"github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// Line is one (item, quantity) pairing. A zero quantity is equivalent to absence.
type Line struct {
	ItemID   catalog.ItemID
	Quantity int
}

// Cart keeps at most one line per item, in the order items were first added.
// It is not safe for concurrent use.
type Cart struct {
	lines []Line
	index map[catalog.ItemID]int
}

func New() *Cart {
	return &Cart{index: make(map[catalog.ItemID]int)}
}

// SetQuantity inserts or replaces the line for id; quantity <= 0 removes it.
// It reports whether the cart changed.
func (c *Cart) SetQuantity(id catalog.ItemID, quantity int) bool {
	if c.index == nil {
		c.index = make(map[catalog.ItemID]int)
	}
	pos, exists := c.index[id]
	if quantity <= 0 {
		if !exists {
			return false
		}
		c.remove(pos)
		return true
	}
	if exists {
		if c.lines[pos].Quantity == quantity {
			return false
		}
		c.lines[pos].Quantity = quantity
		return true
	}
	c.index[id] = len(c.lines)
	c.lines = append(c.lines, Line{ItemID: id, Quantity: quantity})
	return true
}

func (c *Cart) remove(pos int) {
	delete(c.index, c.lines[pos].ItemID)
	c.lines = append(c.lines[:pos], c.lines[pos+1:]...)
	for i := pos; i < len(c.lines); i++ {
		c.index[c.lines[i].ItemID] = i
	}
}

// Quantity returns the current quantity for id, zero when absent.
func (c *Cart) Quantity(id catalog.ItemID) int {
	if pos, ok := c.index[id]; ok {
		return c.lines[pos].Quantity
	}
	return 0
}

// Lines returns a copy of the cart lines.
func (c *Cart) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Clear removes every line.
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[catalog.ItemID]int)
}

// Total sums quantity × unit price over the lines. Items missing from cat contribute zero.
func Total(lines []Line, cat catalog.Catalog) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		price, ok := cat.UnitPrice(l.ItemID)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Total is the cart total priced against cat.
func (c *Cart) Total(cat catalog.Catalog) decimal.Decimal {
	return Total(c.lines, cat)
}
