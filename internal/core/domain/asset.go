package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type TokenType string

const (
	TokenTypeNative TokenType = "NATIVE"
	TokenTypeSPL    TokenType = "SPL"
)

// AcceptedAsset identifies an asset as payable: the native coin or a specific
// SPL mint, with its current quoted price. The live list is read-only input
// to the payment core; prices are snapshotted into quotes at creation time.
type AcceptedAsset struct {
	Symbol    string
	TokenType TokenType
	Mint      string // empty for the native asset
	Price     decimal.Decimal
	Active    bool
	Metadata  map[string]string
}

func (a AcceptedAsset) RequiresMint() bool {
	return a.TokenType == TokenTypeSPL
}

// AssetCatalog lists the currently accepted assets and their prices.
type AssetCatalog interface {
	ListActive(ctx context.Context) ([]AcceptedAsset, error)
	Upsert(ctx context.Context, asset AcceptedAsset) error
	Close()
}
