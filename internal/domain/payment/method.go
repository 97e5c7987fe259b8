package payment

import (
	"errors"
	"strings"
)

var (
	ErrUnknownMethod  = errors.New("payment: unknown method")
	ErrCardIncomplete = errors.New("payment: card number, expiry, cvv and holder name are required")
)

type Method string

const (
	MethodInstantTransfer Method = "instant_transfer"
	MethodCard            Method = "card"
)

// WireName is the payment_method value the payment service expects.
func (m Method) WireName() string {
	switch m {
	case MethodInstantTransfer:
		return "pix"
	case MethodCard:
		return "credit_card"
	default:
		return ""
	}
}

func (m Method) Valid() bool { return m.WireName() != "" }

// MethodFromWire maps a payment_method value back to a Method.
func MethodFromWire(s string) (Method, error) {
	switch s {
	case "pix":
		return MethodInstantTransfer, nil
	case "credit_card":
		return MethodCard, nil
	default:
		return "", ErrUnknownMethod
	}
}

// CardData is forwarded untouched to the payment service; format checks happen there.
type CardData struct {
	Number string
	Expiry string
	CVV    string
	Holder string
}

func (c CardData) Validate() error {
	for _, v := range []string{c.Number, c.Expiry, c.CVV, c.Holder} {
		if strings.TrimSpace(v) == "" {
			return ErrCardIncomplete
		}
	}
	return nil
}
