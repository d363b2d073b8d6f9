package ports

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// ConfirmationStatus is the chain's notion of how irreversible a transaction
// is. The zero value means the cluster has not reported any status yet.
type ConfirmationStatus int

const (
	ConfirmationUnknown ConfirmationStatus = iota
	ConfirmationProcessed
	ConfirmationConfirmed
	ConfirmationFinalized
)

func (s ConfirmationStatus) String() string {
	switch s {
	case ConfirmationProcessed:
		return "processed"
	case ConfirmationConfirmed:
		return "confirmed"
	case ConfirmationFinalized:
		return "finalized"
	}
	return "unknown"
}

// AtLeast reports whether the status satisfies the required commitment.
func (s ConfirmationStatus) AtLeast(required ConfirmationStatus) bool {
	return s >= required
}

// TxEvidence is a transaction observed on an address, reduced to what payment
// verification needs: who paid the fee, and the signature to confirm.
type TxEvidence struct {
	Signature solana.Signature
	FeePayer  solana.PublicKey
}

// SendResult is the outcome of a submitted transfer.
type SendResult struct {
	Signature solana.Signature
	Status    ConfirmationStatus
}

// TokenAccountState describes an associated token account that exists on
// chain.
type TokenAccountState struct {
	Balance uint64 // raw token units
	Program solana.PublicKey
}

// ChainService is the gateway to the ledger. Submission retries on transient
// RPC errors happen inside the gateway (bounded attempts, capped exponential
// backoff); every higher-level failure is surfaced for a later batch pass.
type ChainService interface {
	// FeePayer is the operational address paying fees for infrastructure
	// transactions (account provisioning and closing).
	FeePayer() solana.PublicKey

	NativeBalance(ctx context.Context, addr solana.PublicKey) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (decimal.Decimal, error)

	// DeriveTokenAccount derives the associated token account for
	// (owner, mint) without touching the network.
	DeriveTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error)
	// EnsureTokenAccount derives the associated token account and creates it
	// on chain when missing, fees paid by the fee payer.
	EnsureTokenAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error)
	CreateTokenAccounts(ctx context.Context, owner solana.PublicKey, mints []solana.PublicKey) error
	// TokenAccountState returns nil when the account does not exist on chain.
	TokenAccountState(ctx context.Context, account solana.PublicKey) (*TokenAccountState, error)
	// CloseTokenAccounts closes the given token accounts owned by owner,
	// sending the recovered rent to rentDest.
	CloseTokenAccounts(
		ctx context.Context,
		owner solana.PrivateKey, accounts []solana.PublicKey,
		program, rentDest solana.PublicKey,
	) error

	RecentTransactions(ctx context.Context, addr solana.PublicKey, limit int) ([]TxEvidence, error)
	ConfirmationStatus(ctx context.Context, sig solana.Signature) (ConfirmationStatus, error)

	SendNative(
		ctx context.Context,
		signer solana.PrivateKey, dest solana.PublicKey, amount decimal.Decimal,
	) (*SendResult, error)
	SendToken(
		ctx context.Context,
		signer solana.PrivateKey, dest, mint solana.PublicKey, amount decimal.Decimal,
	) (*SendResult, error)
}
