package order

import (
	"errors"
	"time"

	"github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("order: not found")
	ErrConflict      = errors.New("order: already exists")
	ErrNoLines       = errors.New("order: at least one line is required")
	ErrInvalidAmount = errors.New("order: amount must be zero or greater")
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
)

type Line struct {
	ItemID   catalog.ItemID
	Quantity int
	// UnitPrice is the price the order service charged; zero when it was not reported.
	UnitPrice decimal.Decimal
}

// Order is the server-confirmed record of requested items. ID and TotalAmount are assigned by the
// order service and never recomputed locally.
type Order struct {
	ID          string
	Lines       []Line
	TotalAmount decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(id string, lines []Line, total decimal.Decimal) (*Order, error) {
	if id == "" {
		return nil, errors.New("order: id is required")
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	if total.IsNegative() {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Order{
		ID:          id,
		Lines:       append([]Line(nil), lines...),
		TotalAmount: total,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkCompleted advances the order to completed and reports whether the status changed.
func (o *Order) MarkCompleted() bool {
	if o.Status == StatusCompleted {
		return false
	}
	o.Status = StatusCompleted
	o.touch()
	return true
}

func (o *Order) IsCompleted() bool { return o.Status == StatusCompleted }

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
