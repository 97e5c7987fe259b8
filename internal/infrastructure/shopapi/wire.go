package shopapi

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// ID is an identifier the shop API may send as a JSON number or string.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Amount is a decimal that travels as a bare JSON number.
type Amount struct{ decimal.Decimal }

func NewAmount(d decimal.Decimal) Amount { return Amount{d} }

func (a Amount) MarshalJSON() ([]byte, error) { return []byte(a.Decimal.String()), nil }

func (a *Amount) UnmarshalJSON(b []byte) error { return a.Decimal.UnmarshalJSON(b) }

type Snack struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       Amount `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
	IsAvailable *bool  `json:"is_available,omitempty"`
}

type OrderItem struct {
	SnackID  ID      `json:"snack_id"`
	Quantity int     `json:"quantity"`
	Price    *Amount `json:"price,omitempty"`
}

type CreateOrderRequest struct {
	Items []OrderItem `json:"items"`
}

type Order struct {
	ID          ID          `json:"id"`
	TotalAmount Amount      `json:"total_amount"`
	Status      string      `json:"status,omitempty"`
	Items       []OrderItem `json:"items,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
}

type CardData struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
	Name   string `json:"name"`
}

type CreatePaymentRequest struct {
	OrderID       ID        `json:"order_id"`
	PaymentMethod string    `json:"payment_method"`
	CardData      *CardData `json:"card_data,omitempty"`
}

type Payment struct {
	PaymentID     string  `json:"payment_id"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"payment_method"`
	Amount        *Amount `json:"amount,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	QRCode        string  `json:"qr_code,omitempty"`
	QRCodeImage   string  `json:"qr_code_image,omitempty"`
	ExpiresAt     string  `json:"expires_at,omitempty"`
	Instructions  string  `json:"instructions,omitempty"`
	CardLastFour  string  `json:"card_last_four,omitempty"`
	Message       string  `json:"message,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

type PaymentStatus struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	PaidAt    string `json:"paid_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
