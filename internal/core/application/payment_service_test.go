package application_test

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/soldihq/soldi/internal/core/application"
	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
)

func TestCreatePaymentWithoutActiveAssets(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)

	_, err := env.paymentSvc.CreatePayment(ctx, application.CreatePaymentParams{})
	require.ErrorIs(t, err, domain.ErrPaymentConfiguration)
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)
	mint := solana.NewWallet().PublicKey()
	sol, _ := nativeAsset(1000)
	usdc, _ := splAsset(mint, 5000)
	require.NoError(t, env.repos.assets.Upsert(ctx, sol))
	require.NoError(t, env.repos.assets.Upsert(ctx, usdc))
	require.NoError(t, env.repos.assets.Upsert(ctx, domain.AcceptedAsset{
		Symbol: "OLD", TokenType: domain.TokenTypeNative, Active: false,
	}))

	payment, err := env.paymentSvc.CreatePayment(ctx, application.CreatePaymentParams{
		UserID: "user-1", Label: "Order #7",
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentInitiated, payment.Status)
	require.Equal(t, "user-1", payment.UserID)
	require.Len(t, payment.Quotes, 2)
	require.True(t, payment.ExpirationDate.After(time.Now().Add(29*time.Minute)))

	// the payment address is a freshly generated one-time wallet
	wallet, err := env.repos.wallets.Get(ctx, payment.WalletID)
	require.NoError(t, err)
	require.Equal(t, wallet.Address, payment.Address)
	require.Equal(t, domain.WalletCreated, wallet.State)

	// token accounts were provisioned for the SPL asset only
	require.Len(t, env.chain.created, 1)
	require.Equal(t, []solana.PublicKey{mint}, env.chain.created[0])

	// quotes are a snapshot: catalog price changes do not affect them
	sol.Price = decimal.NewFromInt(9999)
	require.NoError(t, env.repos.assets.Upsert(ctx, sol))
	stored, err := env.repos.payments.Get(ctx, payment.ID)
	require.NoError(t, err)
	quote := stored.QuoteFor(domain.AcceptedAsset{TokenType: domain.TokenTypeNative})
	require.NotNil(t, quote)
	require.True(t, quote.Amount.Equal(decimal.NewFromInt(1000)))
}

func TestExpirePayments(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)
	_, quote := nativeAsset(1000)
	overdue, overdueWallet := env.seedPayment(t, []domain.AssetQuote{quote}, -time.Minute)
	fresh, freshWallet := env.seedPayment(t, []domain.AssetQuote{quote}, time.Hour)

	count, err := env.paymentSvc.ExpirePayments(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	stored, err := env.repos.payments.Get(ctx, overdue.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentExpired, stored.Status)
	storedWallet, err := env.repos.wallets.Get(ctx, overdueWallet.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WalletPaymentExpired, storedWallet.State)

	stored, err = env.repos.payments.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentInitiated, stored.Status)
	storedWallet, err = env.repos.wallets.Get(ctx, freshWallet.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WalletCreated, storedWallet.State)

	// nothing on chain was touched
	require.Zero(t, env.chain.readCalls)
	require.Empty(t, env.chain.sends)
}

func TestSweepSettledWalletsRetriesFailedSweep(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)
	_, quote := nativeAsset(1000)
	payment, wallet := env.seedPayment(t, []domain.AssetQuote{quote}, time.Hour)
	require.NoError(t, env.repos.wallets.UpdateState(
		ctx, wallet.ID, domain.WalletFailedToSendFunds,
	))

	owner := solana.MustPublicKeyFromBase58(payment.Address)
	env.chain.native[owner] = decimal.NewFromInt(1000)

	require.NoError(t, env.paymentSvc.SweepSettledWallets(ctx, 0))

	require.Len(t, env.chain.sends, 1)
	require.True(t, env.chain.sends[0].native)
	stored, err := env.repos.wallets.Get(ctx, wallet.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WalletSentFunds, stored.State)
}

func TestSweepSettledWalletsSweepsPaidToken(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)
	mint := solana.NewWallet().PublicKey()
	_, quote := splAsset(mint, 5000)
	payment, wallet := env.seedPayment(t, []domain.AssetQuote{quote}, time.Hour)

	payment.Status = domain.PaymentFinalized
	payment.PaidAsset = &domain.PaidAsset{TokenType: domain.TokenTypeSPL, Mint: mint.String()}
	require.NoError(t, env.repos.payments.Update(ctx, *payment))
	require.NoError(t, env.repos.wallets.UpdateState(
		ctx, wallet.ID, domain.WalletProcessingFunds,
	))

	owner := solana.MustPublicKeyFromBase58(payment.Address)
	env.chain.tokens[tokenKey(owner, mint)] = decimal.NewFromInt(5000)

	require.NoError(t, env.paymentSvc.SweepSettledWallets(ctx, 0))

	require.Len(t, env.chain.sends, 1)
	send := env.chain.sends[0]
	require.False(t, send.native)
	require.Equal(t, mint, send.mint)
	require.True(t, send.amount.Equal(decimal.NewFromInt(5000)))
}

func TestSweepSettledWalletsClosesAbandonedWallet(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)
	_, quote := nativeAsset(1000)
	_, wallet := env.seedPayment(t, []domain.AssetQuote{quote}, time.Hour)
	require.NoError(t, env.repos.wallets.UpdateState(
		ctx, wallet.ID, domain.WalletProcessingPayment,
	))

	// no balance anywhere: the wallet is abandoned
	require.NoError(t, env.paymentSvc.SweepSettledWallets(ctx, 0))

	require.Empty(t, env.chain.sends)
	stored, err := env.repos.wallets.Get(ctx, wallet.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WalletExpiredAndClosed, stored.State)
}

func TestRecheckInitiatedPayments(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)
	_, quote := nativeAsset(1000)
	mint := solana.NewWallet().PublicKey()
	splA, splQuote := splAsset(mint, 5000)
	_ = splA

	// payment with no quotes, skipped
	env.seedPayment(t, nil, time.Hour)

	// payment that reconciles on the second quoted asset
	reconciling, _ := env.seedPayment(t, []domain.AssetQuote{splQuote, quote}, time.Hour)
	owner := solana.MustPublicKeyFromBase58(reconciling.Address)
	env.chain.native[owner] = decimal.NewFromInt(1000)
	env.chain.history[owner] = []ports.TxEvidence{
		customerTx(ports.ConfirmationFinalized, env.chain),
	}

	// payment whose wallet record is missing, an unexpected error
	broken, brokenWallet := env.seedPayment(t, []domain.AssetQuote{quote}, time.Hour)
	delete(env.repos.wallets.wallets, brokenWallet.ID)
	brokenOwner := solana.MustPublicKeyFromBase58(broken.Address)
	env.chain.native[brokenOwner] = decimal.NewFromInt(1000)
	env.chain.history[brokenOwner] = []ports.TxEvidence{
		customerTx(ports.ConfirmationFinalized, env.chain),
	}

	summary, err := env.paymentSvc.RecheckInitiatedPayments(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Scanned)
	require.Equal(t, 1, summary.SkippedNoQuotes)
	require.Equal(t, 1, summary.Reconciled)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 0, summary.Pending)

	stored, err := env.repos.payments.Get(ctx, reconciling.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFinalized, stored.Status)
}

func TestRecheckLeavesUnsettledPending(t *testing.T) {
	env := newTestEnv(t, ports.ConfirmationFinalized)
	_, quote := nativeAsset(1000)
	env.seedPayment(t, []domain.AssetQuote{quote}, time.Hour)

	summary, err := env.paymentSvc.RecheckInitiatedPayments(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Scanned)
	require.Equal(t, 1, summary.Pending)
	require.Zero(t, summary.Reconciled)
	require.Zero(t, summary.Failed)
}
