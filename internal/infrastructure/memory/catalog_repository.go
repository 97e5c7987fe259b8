package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
)

type CatalogRepository struct {
	mu    sync.RWMutex
	items map[domain.ItemID]*domain.Item
	ids   []domain.ItemID
}

func NewCatalogRepository(seed ...domain.Item) *CatalogRepository {
	r := &CatalogRepository{
		items: make(map[domain.ItemID]*domain.Item),
	}
	for i := range seed {
		_ = r.Save(context.Background(), &seed[i])
	}
	return r
}

func (r *CatalogRepository) List(ctx context.Context) ([]domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Item, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, *r.items[id])
	}
	return out, nil
}

func (r *CatalogRepository) Get(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(item), nil
}

func (r *CatalogRepository) Save(ctx context.Context, item *domain.Item) error {
	_ = ctx
	if item == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; !exists {
		r.ids = append(r.ids, item.ID)
	}
	r.items[item.ID] = cloneItem(item)
	return nil
}

func cloneItem(item *domain.Item) *domain.Item {
	if item == nil {
		return nil
	}
	clone := *item
	return &clone
}
