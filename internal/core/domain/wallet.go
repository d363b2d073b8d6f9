package domain

import (
	"context"
	"time"
)

type WalletState string

const (
	WalletCreated           WalletState = "created"
	WalletProcessingPayment WalletState = "processing_payment"
	WalletProcessingFunds   WalletState = "processing_funds"
	WalletSentFunds         WalletState = "sent_funds"
	WalletFailedToSendFunds WalletState = "failed_to_send_funds"
	WalletPaymentExpired    WalletState = "payment_expired"
	WalletExpiredAndClosed  WalletState = "payment_expired_and_wallet_closed"
)

// OneTimeWallet is an ephemeral custodial keypair scoped to a single payment.
// The secret material is stored encrypted (or plain when encryption is
// disabled) and is decrypted only for the duration of a signing operation.
// Wallets are never deleted; they are kept for audit and rent-reclaim history.
type OneTimeWallet struct {
	ID           string
	Address      string // base58 pubkey, derivable from the secret at any time
	StoredSecret string
	State        WalletState
	// ReceiverAddress is set once funds have been forwarded (or a forward
	// was attempted) to the long-lived receiving wallet.
	ReceiverAddress string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OneTimeWalletRepository interface {
	Add(ctx context.Context, wallet OneTimeWallet) error
	Get(ctx context.Context, walletID string) (*OneTimeWallet, error)
	Update(ctx context.Context, wallet OneTimeWallet) error
	UpdateState(ctx context.Context, walletID string, state WalletState) error
	FindByStates(ctx context.Context, states ...WalletState) ([]OneTimeWallet, error)
	UpdateStateBulk(ctx context.Context, walletIDs []string, state WalletState) error
	Close()
}
