package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	// PaymentInitiated is assigned when the payer requested the data needed
	// to make a transfer; the payment stays here until settlement evidence
	// shows up on chain.
	PaymentInitiated PaymentStatus = "initiated"
	PaymentProcessed PaymentStatus = "processed"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFinalized PaymentStatus = "finalized"
	PaymentExpired   PaymentStatus = "expired"
)

// IsTerminal reports whether the status marks a settled payment.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentProcessed, PaymentConfirmed, PaymentFinalized:
		return true
	}
	return false
}

// AssetQuote is a price snapshot binding a payment to one acceptable asset,
// fixed at payment-creation time. Later changes to the live price list never
// affect quotes already attached to a payment.
type AssetQuote struct {
	TokenType TokenType
	Mint      string // empty for the native asset
	Symbol    string
	Amount    decimal.Decimal
	Metadata  map[string]string
}

// PaidAsset records the asset a payment was actually settled with.
type PaidAsset struct {
	TokenType TokenType
	Mint      string
}

type Payment struct {
	ID      string
	Address string // the one-time wallet pubkey, the payment's external identifier
	WalletID string

	UserID   string
	Label    string
	Message  string
	Metadata map[string]string

	Status    PaymentStatus
	Signature string     // settlement signature, write-once
	PaidAsset *PaidAsset // write-once, nil until settled

	Quotes []AssetQuote

	ExpirationDate time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// QuoteFor returns the quote snapshotted for the given asset, or nil if the
// asset was not active when the payment was created.
func (p *Payment) QuoteFor(asset AcceptedAsset) *AssetQuote {
	for i := range p.Quotes {
		q := &p.Quotes[i]
		if q.TokenType == asset.TokenType && q.Mint == asset.Mint {
			return q
		}
	}
	return nil
}

// TokenMints returns the distinct SPL mints quoted on this payment.
func (p *Payment) TokenMints() []string {
	seen := make(map[string]struct{})
	mints := make([]string, 0, len(p.Quotes))
	for _, q := range p.Quotes {
		if q.TokenType != TokenTypeSPL || q.Mint == "" {
			continue
		}
		if _, ok := seen[q.Mint]; ok {
			continue
		}
		seen[q.Mint] = struct{}{}
		mints = append(mints, q.Mint)
	}
	return mints
}

// PaymentRepository stores payments keyed by id, with the one-time wallet
// address as a unique secondary lookup. Update is atomic per payment.
type PaymentRepository interface {
	Add(ctx context.Context, payment Payment) error
	Get(ctx context.Context, paymentID string) (*Payment, error)
	GetByAddress(ctx context.Context, address string) (*Payment, error)
	GetByWallet(ctx context.Context, walletID string) (*Payment, error)
	Update(ctx context.Context, payment Payment) error
	// MarkExpiredBefore flips every INITIATED payment whose deadline passed
	// to EXPIRED in a single batch and returns the affected payments.
	MarkExpiredBefore(ctx context.Context, deadline time.Time) ([]Payment, error)
	// FindInitiated returns INITIATED payments most-recently-updated first,
	// bounded by limit when limit > 0.
	FindInitiated(ctx context.Context, limit int) ([]Payment, error)
	Close()
}
