package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("catalog: item not found")
	ErrInvalidPrice = errors.New("catalog: unit price must be zero or greater")
)

type ItemID string

// Item is a purchasable catalog entry. UnitPrice is never mutated by the checkout core.
type Item struct {
	ID          ItemID
	Name        string
	Description string
	UnitPrice   decimal.Decimal
	ImageURL    string
	Available   bool
}

func NewItem(id ItemID, name string, unitPrice decimal.Decimal) (*Item, error) {
	if unitPrice.IsNegative() {
		return nil, ErrInvalidPrice
	}
	return &Item{ID: id, Name: name, UnitPrice: unitPrice, Available: true}, nil
}

// Catalog is a read-only price lookup built from a list of items.
type Catalog struct {
	items map[ItemID]Item
	order []ItemID
}

func New(items []Item) Catalog {
	c := Catalog{items: make(map[ItemID]Item, len(items))}
	for _, it := range items {
		if _, dup := c.items[it.ID]; !dup {
			c.order = append(c.order, it.ID)
		}
		c.items[it.ID] = it
	}
	return c
}

func (c Catalog) Get(id ItemID) (Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// UnitPrice returns the price of id and whether the item is known.
func (c Catalog) UnitPrice(id ItemID) (decimal.Decimal, bool) {
	it, ok := c.items[id]
	if !ok {
		return decimal.Zero, false
	}
	return it.UnitPrice, true
}

// Items returns the catalog in its original order.
func (c Catalog) Items() []Item {
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c Catalog) Len() int { return len(c.order) }
