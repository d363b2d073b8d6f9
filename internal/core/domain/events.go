package domain

import "github.com/shopspring/decimal"

// PaymentAcceptedEvent is published after a payment settles. Delivery is
// best-effort and at-least-once; a subscriber failure never unwinds the
// already-committed settlement.
type PaymentAcceptedEvent struct {
	PaymentID string          `json:"payment_id"`
	Address   string          `json:"address"`
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature"`
}
