package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
)

// DefaultPaymentValidity is how long a payer has to settle a payment before
// it expires.
const DefaultPaymentValidity = 30 * time.Minute

// PaymentService owns the payment lifecycle end to end: creation with quote
// snapshotting, plus the periodic batch jobs that expire, reconcile and sweep
// what the payer-driven verification path missed.
type PaymentService struct {
	repoManager ports.RepoManager
	chainSvc    ports.ChainService
	walletSvc   *WalletService
	sweepSvc    *SweepService
	verifySvc   *VerifyService

	receiver solana.PublicKey
	validity time.Duration
}

func NewPaymentService(
	repoManager ports.RepoManager, chainSvc ports.ChainService,
	walletSvc *WalletService, sweepSvc *SweepService, verifySvc *VerifyService,
	receiver solana.PublicKey, validity time.Duration,
) *PaymentService {
	if validity <= 0 {
		validity = DefaultPaymentValidity
	}
	return &PaymentService{
		repoManager: repoManager,
		chainSvc:    chainSvc,
		walletSvc:   walletSvc,
		sweepSvc:    sweepSvc,
		verifySvc:   verifySvc,
		receiver:    receiver,
		validity:    validity,
	}
}

type CreatePaymentParams struct {
	UserID   string
	Label    string
	Message  string
	Metadata map[string]string
}

// CreatePayment provisions a fresh one-time wallet and records a payment
// quoted against every currently active asset. The quotes are a snapshot:
// price changes after this point do not affect the payment.
func (s *PaymentService) CreatePayment(
	ctx context.Context, params CreatePaymentParams,
) (*domain.Payment, error) {
	assets, err := s.repoManager.Assets().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf(
			"%w: no active assets to quote the payment against", domain.ErrPaymentConfiguration,
		)
	}

	wallet, err := s.walletSvc.CreateWallet(ctx, true)
	if err != nil {
		return nil, err
	}

	quotes := make([]domain.AssetQuote, 0, len(assets))
	for _, asset := range assets {
		quotes = append(quotes, domain.AssetQuote{
			TokenType: asset.TokenType,
			Mint:      asset.Mint,
			Symbol:    asset.Symbol,
			Amount:    asset.Price,
			Metadata:  asset.Metadata,
		})
	}

	now := time.Now()
	payment := domain.Payment{
		ID:             uuid.NewString(),
		Address:        wallet.Address,
		WalletID:       wallet.ID,
		UserID:         params.UserID,
		Label:          params.Label,
		Message:        params.Message,
		Metadata:       params.Metadata,
		Status:         domain.PaymentInitiated,
		Quotes:         quotes,
		ExpirationDate: now.Add(s.validity),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repoManager.Payments().Add(ctx, payment); err != nil {
		return nil, err
	}
	log.Infof("created payment %s with %d quotes", payment.Address, len(quotes))
	return &payment, nil
}

// ExpirePayments flips every overdue INITIATED payment to EXPIRED and parks
// the wallets for the rent-reclaim job. Pure bookkeeping, no chain calls.
func (s *PaymentService) ExpirePayments(ctx context.Context) (int, error) {
	expired, err := s.repoManager.Payments().MarkExpiredBefore(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	walletIDs := make([]string, 0, len(expired))
	for _, payment := range expired {
		if payment.WalletID != "" {
			walletIDs = append(walletIDs, payment.WalletID)
		}
	}
	if err := s.repoManager.Wallets().UpdateStateBulk(
		ctx, walletIDs, domain.WalletPaymentExpired,
	); err != nil {
		return 0, err
	}
	log.Infof("marked %d payments as expired", len(expired))
	return len(expired), nil
}

// SweepSettledWallets retries fund forwarding for every wallet stuck between
// settlement and a completed sweep. Wallets with no remaining balance are
// treated as abandoned: their payment window is over and their accounts are
// closed for rent.
func (s *PaymentService) SweepSettledWallets(
	ctx context.Context, rateLimitDelay time.Duration,
) error {
	wallets, err := s.repoManager.Wallets().FindByStates(ctx,
		domain.WalletProcessingPayment,
		domain.WalletProcessingFunds,
		domain.WalletFailedToSendFunds,
	)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return nil
	}
	log.Infof("found %d one-time wallets to sweep", len(wallets))

	for i := range wallets {
		wallet := wallets[i]
		if rateLimitDelay > 0 {
			time.Sleep(rateLimitDelay)
		}
		if err := s.sweepSettledWallet(ctx, &wallet); err != nil {
			log.WithError(err).Warnf("failed to sweep wallet %s", wallet.Address)
		}
	}
	return nil
}

func (s *PaymentService) sweepSettledWallet(
	ctx context.Context, wallet *domain.OneTimeWallet,
) error {
	owner, err := solana.PublicKeyFromBase58(wallet.Address)
	if err != nil {
		return fmt.Errorf("invalid wallet address %s: %w", wallet.Address, err)
	}
	nativeBalance, err := s.chainSvc.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}

	var paidMint string
	tokenBalance := decimal.Zero
	payment, err := s.repoManager.Payments().GetByWallet(ctx, wallet.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if payment != nil && payment.PaidAsset != nil && payment.PaidAsset.Mint != "" {
		paidMint = payment.PaidAsset.Mint
		mint, err := solana.PublicKeyFromBase58(paidMint)
		if err != nil {
			return fmt.Errorf("invalid mint %s: %w", paidMint, err)
		}
		tokenBalance, err = s.chainSvc.TokenBalance(ctx, owner, mint)
		if err != nil {
			return err
		}
	}

	// native funds take priority, they also cover the fee for a token sweep
	switch {
	case nativeBalance.IsPositive():
		return s.sweepSvc.Sweep(
			ctx, wallet, s.receiver, nativeBalance, domain.TokenTypeNative, "", true,
		)
	case tokenBalance.IsPositive():
		return s.sweepSvc.Sweep(
			ctx, wallet, s.receiver, tokenBalance, domain.TokenTypeSPL, paidMint, true,
		)
	default:
		log.Infof("wallet %s has no balance left, marking as abandoned", wallet.Address)
		if err := s.repoManager.Wallets().UpdateState(
			ctx, wallet.ID, domain.WalletPaymentExpired,
		); err != nil {
			return err
		}
		done, err := s.walletSvc.CloseWalletTokenAccounts(ctx, wallet, s.chainSvc.FeePayer())
		if err != nil {
			return err
		}
		if done {
			return s.repoManager.Wallets().UpdateState(
				ctx, wallet.ID, domain.WalletExpiredAndClosed,
			)
		}
		return nil
	}
}

// RecheckSummary reports the outcome of one reconciliation pass over
// INITIATED payments.
type RecheckSummary struct {
	Scanned         int
	Reconciled      int
	Pending         int
	Failed          int
	SkippedNoQuotes int
}

// RecheckInitiatedPayments re-runs verification for payments the payer never
// polled to completion. Each payment is checked against every quoted asset
// until one settles it. Expected verification outcomes (expired, underpaid,
// not confirmed yet) leave the payment pending; anything else counts it as
// failed for this pass.
func (s *PaymentService) RecheckInitiatedPayments(
	ctx context.Context, limit int, rateLimitDelay time.Duration,
) (*RecheckSummary, error) {
	payments, err := s.repoManager.Payments().FindInitiated(ctx, limit)
	if err != nil {
		return nil, err
	}

	summary := &RecheckSummary{}
	for i := range payments {
		payment := payments[i]
		summary.Scanned++

		if len(payment.Quotes) == 0 {
			log.Warnf("payment %s has no quotes, skipping recheck", payment.Address)
			summary.SkippedNoQuotes++
			continue
		}

		var reconciled, failed bool
		for _, quote := range payment.Quotes {
			asset := domain.AcceptedAsset{
				Symbol:    quote.Symbol,
				TokenType: quote.TokenType,
				Mint:      quote.Mint,
				Price:     quote.Amount,
			}
			status, err := s.verifySvc.Verify(ctx, payment.Address, asset, nil)
			if err != nil {
				if domain.IsPaymentError(err) {
					log.Debugf("payment %s not settled via %s: %v", payment.Address, asset.Symbol, err)
					continue
				}
				log.WithError(err).Warnf("unexpected error rechecking payment %s", payment.Address)
				failed = true
				break
			}
			if status.IsTerminal() {
				reconciled = true
				break
			}
		}
		switch {
		case reconciled:
			summary.Reconciled++
		case failed:
			summary.Failed++
		default:
			summary.Pending++
		}

		if rateLimitDelay > 0 {
			time.Sleep(rateLimitDelay)
		}
	}

	log.Infof(
		"recheck completed: scanned=%d reconciled=%d pending=%d failed=%d skipped_no_quotes=%d",
		summary.Scanned, summary.Reconciled, summary.Pending, summary.Failed, summary.SkippedNoQuotes,
	)
	return summary, nil
}
