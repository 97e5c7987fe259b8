package order

import (
	"context"
	"time"

	domcart "github.com/Zhima-Mochi/snackshop/internal/domain/cart"
	domain "github.com/Zhima-Mochi/snackshop/internal/domain/order"
)

// Gateway submits a cart to the order service. The returned order carries the server-assigned
// id and total. Failures are *apperr.Error values.
type Gateway interface {
	CreateOrder(ctx context.Context, lines []domcart.Line) (*domain.Order, error)
}

// CartClearer empties the shared cart.
type CartClearer interface {
	Clear()
}

// Notifier shows a transient message that disappears after window.
type Notifier interface {
	Show(ctx context.Context, message string, window time.Duration)
}
