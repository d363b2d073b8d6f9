package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by repositories when the requested record does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrPayment is the root of all expected payment failures. Batch jobs use it
// to tell benign "come back later" outcomes apart from unexpected errors.
var ErrPayment = errors.New("payment error")

var (
	// ErrPaymentExpired is returned when verification is attempted past the
	// deadline; the expiry side effect is already committed by then.
	ErrPaymentExpired = fmt.Errorf("%w: payment expired", ErrPayment)
	// ErrPaymentNotConfirmed is returned when settlement evidence exists but
	// has not reached the configured acceptance commitment yet.
	ErrPaymentNotConfirmed = fmt.Errorf("%w: transaction not confirmed at required commitment", ErrPayment)
	// ErrPaymentConfiguration signals a misconfigured asset catalog, e.g. no
	// active assets to quote a new payment against.
	ErrPaymentConfiguration = fmt.Errorf("%w: payment configuration error", ErrPayment)
)

type PaymentNotFoundError struct {
	Address string
}

func (e *PaymentNotFoundError) Error() string {
	return fmt.Sprintf("payment with address %s not found", e.Address)
}

func (e *PaymentNotFoundError) Unwrap() error { return ErrPayment }

type TokenPriceNotFoundError struct {
	Mint string
}

func (e *TokenPriceNotFoundError) Error() string {
	if e.Mint == "" {
		return "payment token price not found for native asset"
	}
	return fmt.Sprintf("payment token price not found for mint %s", e.Mint)
}

func (e *TokenPriceNotFoundError) Unwrap() error { return ErrPayment }

// InvalidPaymentAmountError signals an underpayment: a customer transfer
// exists but the observed balance is below the quoted amount. The payment
// stays INITIATED and the payer can top up.
type InvalidPaymentAmountError struct {
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *InvalidPaymentAmountError) Error() string {
	return fmt.Sprintf("invalid transfer amount: expected=%s, actual=%s", e.Expected, e.Actual)
}

func (e *InvalidPaymentAmountError) Unwrap() error { return ErrPayment }

// IsPaymentError reports whether err is one of the expected, typed payment
// failures rather than an infrastructure fault.
func IsPaymentError(err error) bool {
	return errors.Is(err, ErrPayment)
}
