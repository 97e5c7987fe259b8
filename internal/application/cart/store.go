// Package cart exposes the shared cart to the rest of the checkout flow.
package cart

import (
	"sync"

	domcart "github.com/Zhima-Mochi/snackshop/internal/domain/cart"
	"github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// Snapshot is the cart as observers see it after a mutation.
type Snapshot struct {
	Lines []domcart.Line
}

// Store is the single owner of the cart. Observers run synchronously, in subscription order,
// after every mutation that changed the cart.
type Store struct {
	mu        sync.Mutex
	cart      *domcart.Cart
	observers map[uint64]func(Snapshot)
	order     []uint64
	nextID    uint64
}

func NewStore() *Store {
	return &Store{
		cart:      domcart.New(),
		observers: make(map[uint64]func(Snapshot)),
	}
}

// SetQuantity inserts, replaces or removes (quantity <= 0) the line for id.
func (s *Store) SetQuantity(id catalog.ItemID, quantity int) {
	s.mu.Lock()
	changed := s.cart.SetQuantity(id, quantity)
	snap, obs := s.snapshotLocked(changed)
	s.mu.Unlock()

	notify(obs, snap)
}

func (s *Store) Lines() []domcart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Lines()
}

func (s *Store) Quantity(id catalog.ItemID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Quantity(id)
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.IsEmpty()
}

// ComputeTotal prices the current lines against cat. Items missing from cat count as zero.
func (s *Store) ComputeTotal(cat catalog.Catalog) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Total(cat)
}

// Clear empties the cart. Clearing an empty cart does not notify observers.
func (s *Store) Clear() {
	s.mu.Lock()
	changed := !s.cart.IsEmpty()
	s.cart.Clear()
	snap, obs := s.snapshotLocked(changed)
	s.mu.Unlock()

	notify(obs, snap)
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.observers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) snapshotLocked(changed bool) (Snapshot, []func(Snapshot)) {
	if !changed || len(s.order) == 0 {
		return Snapshot{}, nil
	}
	obs := make([]func(Snapshot), 0, len(s.order))
	for _, id := range s.order {
		obs = append(obs, s.observers[id])
	}
	return Snapshot{Lines: s.cart.Lines()}, obs
}

func notify(obs []func(Snapshot), snap Snapshot) {
	for _, fn := range obs {
		fn(snap)
	}
}
