package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusInProgress PaymentStatus = "EN_COURS"
	PaymentStatusAwaiting   PaymentStatus = "EN_ATTENTE"
	PaymentStatusSucceeded  PaymentStatus = "REUSSI"
	PaymentStatusFailed     PaymentStatus = "ECHOUE"
	PaymentStatusRefunded   PaymentStatus = "REMBOURSE"
)

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodPayPal   PaymentMethod = "PAYPAL"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCash     PaymentMethod = "CASH"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodCard, PaymentMethodPayPal, PaymentMethodTransfer, PaymentMethodCash:
		return m, true
	}
	return "", false
}

// IsManual reports whether the method settles outside the gateway and needs confirmation.
func (m PaymentMethod) IsManual() bool {
	return m == PaymentMethodTransfer || m == PaymentMethodCash
}

type Payment struct {
	ID            int64           `json:"id"`
	RentalID      int64           `json:"rental_id"`
	ClientID      int64           `json:"client_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	Status        PaymentStatus   `json:"status"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (p *Payment) Succeeded() bool {
	return p != nil && p.Status == PaymentStatusSucceeded
}
