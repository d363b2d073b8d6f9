// Package solanapay builds Solana Pay payment request URLs, the format
// understood by wallet apps when scanning a payment QR code.
package solanapay

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

const scheme = "solana"

// Request describes a payment request. Amount is in user units of the asset
// (SOL, not lamports); a zero amount leaves the amount up to the payer.
type Request struct {
	Recipient string
	Amount    decimal.Decimal
	SplToken  string // mint address, empty for the native coin
	Reference string
	Label     string
	Message   string
	Memo      string
}

// URL renders the request as a solana: payment URL.
func (r Request) URL() (string, error) {
	if strings.TrimSpace(r.Recipient) == "" {
		return "", fmt.Errorf("recipient is required")
	}
	if r.Amount.IsNegative() {
		return "", fmt.Errorf("amount cannot be negative")
	}

	params := url.Values{}
	if r.Amount.IsPositive() {
		params.Set("amount", r.Amount.String())
	}
	if r.SplToken != "" {
		params.Set("spl-token", r.SplToken)
	}
	if r.Reference != "" {
		params.Set("reference", r.Reference)
	}
	if r.Label != "" {
		params.Set("label", r.Label)
	}
	if r.Message != "" {
		params.Set("message", r.Message)
	}
	if r.Memo != "" {
		params.Set("memo", r.Memo)
	}

	u := scheme + ":" + r.Recipient
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u, nil
}

// QRPNG renders the request as a PNG QR code of size x size pixels.
func (r Request) QRPNG(size int) ([]byte, error) {
	u, err := r.URL()
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(u, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// UIAmount converts a raw base-unit amount to user units given the asset's
// decimals.
func UIAmount(raw decimal.Decimal, decimals int32) decimal.Decimal {
	return raw.Shift(-decimals)
}
