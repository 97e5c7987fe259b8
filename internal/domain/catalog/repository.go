package catalog

import "context"

type Repository interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id ItemID) (*Item, error)
	Save(ctx context.Context, item *Item) error
}
