package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
)

// recentTxLimit bounds how many recent transactions are inspected per
// verification. A one-time address sees at most a couple of transactions, the
// customer transfer plus our own account provisioning.
const recentTxLimit = 2

// VerifyService drives the payment verification state machine: it inspects
// the one-time address on chain, decides whether the payment settled at the
// configured acceptance commitment, commits the status transition and hands
// the wallet to the sweeper.
type VerifyService struct {
	repoManager ports.RepoManager
	chainSvc    ports.ChainService
	sweepSvc    *SweepService
	publisher   ports.EventPublisher

	receiver   solana.PublicKey
	acceptance ports.ConfirmationStatus
}

func NewVerifyService(
	repoManager ports.RepoManager, chainSvc ports.ChainService,
	sweepSvc *SweepService, publisher ports.EventPublisher,
	receiver solana.PublicKey, acceptance ports.ConfirmationStatus,
) *VerifyService {
	if acceptance == ports.ConfirmationUnknown {
		acceptance = ports.ConfirmationFinalized
	}
	return &VerifyService{
		repoManager: repoManager,
		chainSvc:    chainSvc,
		sweepSvc:    sweepSvc,
		publisher:   publisher,
		receiver:    receiver,
		acceptance:  acceptance,
	}
}

// Verify runs one verification pass for the payment identified by its
// one-time address, against a single candidate asset. It returns the resulting
// status on success; expected non-settled outcomes (expired, underpaid, not
// yet confirmed) come back as typed payment errors.
//
// Verify is idempotent: a payment already settled returns its recorded status
// without touching the chain.
func (s *VerifyService) Verify(
	ctx context.Context,
	paymentAddress string, asset domain.AcceptedAsset, metadata map[string]string,
) (domain.PaymentStatus, error) {
	log.Infof("verifying payment %s against asset %s", paymentAddress, asset.Symbol)

	payment, err := s.repoManager.Payments().GetByAddress(ctx, paymentAddress)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", &domain.PaymentNotFoundError{Address: paymentAddress}
		}
		return "", err
	}

	// best-effort in-flight marker, never gates the verification
	if err := s.repoManager.Wallets().UpdateState(
		ctx, payment.WalletID, domain.WalletProcessingPayment,
	); err != nil {
		log.WithError(err).Warnf("failed to mark wallet %s as processing", payment.WalletID)
	}

	if payment.Status == domain.PaymentConfirmed || payment.Status == domain.PaymentFinalized {
		log.Infof("payment %s already settled with status %s", payment.Address, payment.Status)
		return payment.Status, nil
	}

	if time.Now().After(payment.ExpirationDate) {
		if err := s.expire(ctx, payment); err != nil {
			return "", err
		}
		return "", domain.ErrPaymentExpired
	}

	owner, err := solana.PublicKeyFromBase58(paymentAddress)
	if err != nil {
		return "", fmt.Errorf("invalid payment address %s: %w", paymentAddress, err)
	}

	evidence, balance, err := s.gatherEvidence(ctx, payment, owner, asset)
	if err != nil {
		return "", err
	}
	if len(evidence) == 0 {
		log.Infof("no settlement evidence for payment %s yet", payment.Address)
		return domain.PaymentInitiated, nil
	}

	status, err := s.settle(ctx, payment, evidence[0], asset, metadata)
	if err != nil {
		return "", err
	}

	wallet, err := s.repoManager.Wallets().Get(ctx, payment.WalletID)
	if err != nil {
		return "", err
	}
	if err := s.sweepSvc.Sweep(
		ctx, wallet, s.receiver, balance, asset.TokenType, asset.Mint, true,
	); err != nil {
		log.WithError(err).Errorf("failed to trigger sweep for wallet %s", wallet.Address)
	}

	event := domain.PaymentAcceptedEvent{
		PaymentID: payment.ID,
		Address:   payment.Address,
		Status:    status,
		Amount:    balance,
		Signature: payment.Signature,
	}
	if err := s.publisher.PublishPaymentAccepted(ctx, event); err != nil {
		log.WithError(err).Warnf("failed to publish accepted event for payment %s", payment.ID)
	}
	return status, nil
}

func (s *VerifyService) expire(ctx context.Context, payment *domain.Payment) error {
	payment.Status = domain.PaymentExpired
	if err := s.repoManager.Payments().Update(ctx, *payment); err != nil {
		return err
	}
	if err := s.repoManager.Wallets().UpdateState(
		ctx, payment.WalletID, domain.WalletPaymentExpired,
	); err != nil {
		return err
	}
	log.Warnf("payment %s expired", payment.Address)
	return nil
}

// gatherEvidence reads the on-chain balance and recent transaction history of
// the one-time address for the candidate asset. Transactions whose fee was
// paid by our own operational wallet are account provisioning or closing,
// never settlement evidence, and are filtered out. Underpayment is only an
// error once a qualifying transaction exists; before that the payer simply
// has not acted yet.
func (s *VerifyService) gatherEvidence(
	ctx context.Context,
	payment *domain.Payment, owner solana.PublicKey, asset domain.AcceptedAsset,
) ([]ports.TxEvidence, decimal.Decimal, error) {
	quote := payment.QuoteFor(asset)
	if quote == nil {
		return nil, decimal.Zero, &domain.TokenPriceNotFoundError{Mint: asset.Mint}
	}

	var balance decimal.Decimal
	target := owner
	if asset.RequiresMint() {
		mint, err := solana.PublicKeyFromBase58(asset.Mint)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("invalid mint %s: %w", asset.Mint, err)
		}
		balance, err = s.chainSvc.TokenBalance(ctx, owner, mint)
		if err != nil {
			return nil, decimal.Zero, err
		}
		target, err = s.chainSvc.EnsureTokenAccount(ctx, owner, mint)
		if err != nil {
			return nil, decimal.Zero, err
		}
	} else {
		var err error
		balance, err = s.chainSvc.NativeBalance(ctx, owner)
		if err != nil {
			return nil, decimal.Zero, err
		}
	}

	txs, err := s.chainSvc.RecentTransactions(ctx, target, recentTxLimit)
	if err != nil {
		return nil, decimal.Zero, err
	}

	feePayer := s.chainSvc.FeePayer()
	evidence := make([]ports.TxEvidence, 0, len(txs))
	for _, tx := range txs {
		if tx.FeePayer.Equals(feePayer) {
			log.Debugf("ignoring infrastructure transaction %s", tx.Signature)
			continue
		}
		evidence = append(evidence, tx)
	}

	if len(evidence) > 0 && quote.Amount.GreaterThan(balance) {
		log.Errorf(
			"underpaid payment %s: expected=%s actual=%s",
			payment.Address, quote.Amount, balance,
		)
		return nil, decimal.Zero, &domain.InvalidPaymentAmountError{
			Expected: quote.Amount, Actual: balance,
		}
	}
	return evidence, balance, nil
}

func (s *VerifyService) settle(
	ctx context.Context,
	payment *domain.Payment, tx ports.TxEvidence,
	asset domain.AcceptedAsset, metadata map[string]string,
) (domain.PaymentStatus, error) {
	confirmation, err := s.chainSvc.ConfirmationStatus(ctx, tx.Signature)
	if err != nil {
		return "", err
	}
	if !confirmation.AtLeast(s.acceptance) {
		log.Infof(
			"tx %s for payment %s is %s, waiting for %s",
			tx.Signature, payment.Address, confirmation, s.acceptance,
		)
		return "", domain.ErrPaymentNotConfirmed
	}

	status := StatusForCommitment(s.acceptance)
	payment.Status = status
	payment.Signature = tx.Signature.String()
	payment.PaidAsset = &domain.PaidAsset{TokenType: asset.TokenType, Mint: asset.Mint}
	payment.Metadata = metadata
	if err := s.repoManager.Payments().Update(ctx, *payment); err != nil {
		return "", err
	}
	if !status.IsTerminal() {
		return "", domain.ErrPaymentNotConfirmed
	}

	log.Infof("payment %s settled with status %s, tx %s", payment.Address, status, payment.Signature)
	return status, nil
}

// StatusForCommitment maps the acceptance commitment to the payment status a
// settled payment is recorded with.
func StatusForCommitment(c ports.ConfirmationStatus) domain.PaymentStatus {
	switch c {
	case ports.ConfirmationProcessed:
		return domain.PaymentProcessed
	case ports.ConfirmationConfirmed:
		return domain.PaymentConfirmed
	case ports.ConfirmationFinalized:
		return domain.PaymentFinalized
	}
	return domain.PaymentInitiated
}
